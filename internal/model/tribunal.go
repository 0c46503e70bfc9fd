package model

import (
	"sort"
	"strings"
)

// TribunalKind groups courts by branch.
type TribunalKind string

const (
	TribunalSuperior TribunalKind = "superior"
	TribunalState    TribunalKind = "state"
	TribunalFederal  TribunalKind = "federal"
	TribunalLabor    TribunalKind = "labor"
	TribunalMilitary TribunalKind = "military"
)

// Tribunal is a court that publishes in the national electronic gazette.
type Tribunal struct {
	Code string       `json:"code"`
	Name string       `json:"name"`
	Kind TribunalKind `json:"kind"`
}

var tribunals = map[string]Tribunal{}

func register(kind TribunalKind, entries ...[2]string) {
	for _, e := range entries {
		tribunals[e[0]] = Tribunal{Code: e[0], Name: e[1], Kind: kind}
	}
}

func init() {
	register(TribunalSuperior,
		[2]string{"STF", "Supremo Tribunal Federal"},
		[2]string{"STJ", "Superior Tribunal de Justiça"},
		[2]string{"TST", "Tribunal Superior do Trabalho"},
		[2]string{"TSE", "Tribunal Superior Eleitoral"},
		[2]string{"STM", "Superior Tribunal Militar"},
	)
	register(TribunalState,
		[2]string{"TJAC", "Tribunal de Justiça do Acre"},
		[2]string{"TJAL", "Tribunal de Justiça de Alagoas"},
		[2]string{"TJAM", "Tribunal de Justiça do Amazonas"},
		[2]string{"TJAP", "Tribunal de Justiça do Amapá"},
		[2]string{"TJBA", "Tribunal de Justiça da Bahia"},
		[2]string{"TJCE", "Tribunal de Justiça do Ceará"},
		[2]string{"TJDF", "Tribunal de Justiça do Distrito Federal"},
		[2]string{"TJES", "Tribunal de Justiça do Espírito Santo"},
		[2]string{"TJGO", "Tribunal de Justiça de Goiás"},
		[2]string{"TJMA", "Tribunal de Justiça do Maranhão"},
		[2]string{"TJMG", "Tribunal de Justiça de Minas Gerais"},
		[2]string{"TJMS", "Tribunal de Justiça de Mato Grosso do Sul"},
		[2]string{"TJMT", "Tribunal de Justiça de Mato Grosso"},
		[2]string{"TJPA", "Tribunal de Justiça do Pará"},
		[2]string{"TJPB", "Tribunal de Justiça da Paraíba"},
		[2]string{"TJPE", "Tribunal de Justiça de Pernambuco"},
		[2]string{"TJPI", "Tribunal de Justiça do Piauí"},
		[2]string{"TJPR", "Tribunal de Justiça do Paraná"},
		[2]string{"TJRJ", "Tribunal de Justiça do Rio de Janeiro"},
		[2]string{"TJRN", "Tribunal de Justiça do Rio Grande do Norte"},
		[2]string{"TJRO", "Tribunal de Justiça de Rondônia"},
		[2]string{"TJRR", "Tribunal de Justiça de Roraima"},
		[2]string{"TJRS", "Tribunal de Justiça do Rio Grande do Sul"},
		[2]string{"TJSC", "Tribunal de Justiça de Santa Catarina"},
		[2]string{"TJSE", "Tribunal de Justiça de Sergipe"},
		[2]string{"TJSP", "Tribunal de Justiça de São Paulo"},
		[2]string{"TJTO", "Tribunal de Justiça do Tocantins"},
	)
	register(TribunalFederal,
		[2]string{"TRF1", "Tribunal Regional Federal da 1ª Região"},
		[2]string{"TRF2", "Tribunal Regional Federal da 2ª Região"},
		[2]string{"TRF3", "Tribunal Regional Federal da 3ª Região"},
		[2]string{"TRF4", "Tribunal Regional Federal da 4ª Região"},
		[2]string{"TRF5", "Tribunal Regional Federal da 5ª Região"},
		[2]string{"TRF6", "Tribunal Regional Federal da 6ª Região"},
	)
	register(TribunalLabor,
		[2]string{"TRT1", "Tribunal Regional do Trabalho da 1ª Região (RJ)"},
		[2]string{"TRT2", "Tribunal Regional do Trabalho da 2ª Região (SP)"},
		[2]string{"TRT3", "Tribunal Regional do Trabalho da 3ª Região (MG)"},
		[2]string{"TRT4", "Tribunal Regional do Trabalho da 4ª Região (RS)"},
		[2]string{"TRT5", "Tribunal Regional do Trabalho da 5ª Região (BA)"},
		[2]string{"TRT6", "Tribunal Regional do Trabalho da 6ª Região (PE)"},
		[2]string{"TRT7", "Tribunal Regional do Trabalho da 7ª Região (CE)"},
		[2]string{"TRT8", "Tribunal Regional do Trabalho da 8ª Região (PA/AP)"},
		[2]string{"TRT9", "Tribunal Regional do Trabalho da 9ª Região (PR)"},
		[2]string{"TRT10", "Tribunal Regional do Trabalho da 10ª Região (DF/TO)"},
		[2]string{"TRT11", "Tribunal Regional do Trabalho da 11ª Região (AM/RR)"},
		[2]string{"TRT12", "Tribunal Regional do Trabalho da 12ª Região (SC)"},
		[2]string{"TRT13", "Tribunal Regional do Trabalho da 13ª Região (PB)"},
		[2]string{"TRT14", "Tribunal Regional do Trabalho da 14ª Região (RO/AC)"},
		[2]string{"TRT15", "Tribunal Regional do Trabalho da 15ª Região (Campinas)"},
		[2]string{"TRT16", "Tribunal Regional do Trabalho da 16ª Região (MA)"},
		[2]string{"TRT17", "Tribunal Regional do Trabalho da 17ª Região (ES)"},
		[2]string{"TRT18", "Tribunal Regional do Trabalho da 18ª Região (GO)"},
		[2]string{"TRT19", "Tribunal Regional do Trabalho da 19ª Região (AL)"},
		[2]string{"TRT20", "Tribunal Regional do Trabalho da 20ª Região (SE)"},
		[2]string{"TRT21", "Tribunal Regional do Trabalho da 21ª Região (RN)"},
		[2]string{"TRT22", "Tribunal Regional do Trabalho da 22ª Região (PI)"},
		[2]string{"TRT23", "Tribunal Regional do Trabalho da 23ª Região (MT)"},
		[2]string{"TRT24", "Tribunal Regional do Trabalho da 24ª Região (MS)"},
	)
	register(TribunalMilitary,
		[2]string{"TJMSP", "Tribunal de Justiça Militar de São Paulo"},
		[2]string{"TJMRS", "Tribunal de Justiça Militar do Rio Grande do Sul"},
		[2]string{"TJMMG", "Tribunal de Justiça Militar de Minas Gerais"},
	)
}

// LookupTribunal returns the tribunal registered under code.
func LookupTribunal(code string) (Tribunal, bool) {
	t, ok := tribunals[strings.ToUpper(strings.TrimSpace(code))]
	return t, ok
}

// Tribunals returns every registered tribunal sorted by code, optionally
// restricted to the given kinds.
func Tribunals(kinds ...TribunalKind) []Tribunal {
	want := make(map[TribunalKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	out := make([]Tribunal, 0, len(tribunals))
	for _, t := range tribunals {
		if len(want) == 0 || want[t.Kind] {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
