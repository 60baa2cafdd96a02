package service

import "testing"

func TestRecommend(t *testing.T) {
	const (
		bordeauxTitle = "Recomendação: Calda Bordalesa"
		bordeauxDesc  = "Para severidades médias abaixo de 5% recomenda-se o uso de tratamentos alternativos, como a utilização de calda bordalesa."
		fungTitle     = "Recomendação: Uso de Fungicida"
		fungDesc      = "Devido à severidade média superior a 5%, recomenda-se o uso de fungicida."
	)

	tests := []struct {
		severity float64
		kind     string
		title    string
		desc     string
	}{
		{0, "calda_bordalesa", bordeauxTitle, bordeauxDesc},
		{2, "calda_bordalesa", bordeauxTitle, bordeauxDesc},
		{4.99, "calda_bordalesa", bordeauxTitle, bordeauxDesc},
		{5, "fungicida", fungTitle, fungDesc},
		{130, "fungicida", fungTitle, fungDesc},
	}
	for _, tt := range tests {
		got := Recommend(tt.severity)
		if got.Kind != tt.kind || got.Title != tt.title || got.Description != tt.desc {
			t.Errorf("Recommend(%v) = %+v, want {%s %s %s}", tt.severity, *got, tt.kind, tt.title, tt.desc)
		}
	}
}

func TestRecommendReturnsCopy(t *testing.T) {
	r := Recommend(1)
	r.Title = "changed"
	if Recommend(1).Title == "changed" {
		t.Error("Recommend should not expose shared state")
	}
}
