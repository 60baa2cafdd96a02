package service

import "github.com/DougLeite-prof/cultivatrack-app-v8-com-detec-o/model"

// LowSeverityThreshold 低于该严重度（%）时推荐波尔多液
const LowSeverityThreshold = 5.0

var (
	bordeauxMixture = model.Recommendation{
		Kind:        "calda_bordalesa",
		Title:       "Recomendação: Calda Bordalesa",
		Description: "Para severidades médias abaixo de 5% recomenda-se o uso de tratamentos alternativos, como a utilização de calda bordalesa.",
	}
	fungicide = model.Recommendation{
		Kind:        "fungicida",
		Title:       "Recomendação: Uso de Fungicida",
		Description: "Devido à severidade média superior a 5%, recomenda-se o uso de fungicida.",
	}
)

// Recommend 按严重度阈值选择处理建议
func Recommend(severity float64) *model.Recommendation {
	if severity < LowSeverityThreshold {
		r := bordeauxMixture
		return &r
	}
	r := fungicide
	return &r
}
