package utils

import (
	"fmt"
	"time"
)

// MicrosToSeconds converte microssegundos para segundos
func MicrosToSeconds(us int64) float64 {
	return float64(us) / 1e6
}

// MicrosToDuration converte microssegundos para time.Duration
func MicrosToDuration(us int64) time.Duration {
	return time.Duration(us) * time.Microsecond
}

// FormatDuration formata uma duração para exibição amigável
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	h := d / time.Hour
	d -= h * time.Hour

	m := d / time.Minute
	d -= m * time.Minute

	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	} else if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatDateTimeMs formata um time.Time para exibição com milissegundos
func FormatDateTimeMs(t time.Time) string {
	return t.Format("2006-01-02 15:04:05.000")
}

// TimeAgo retorna uma string descrevendo quanto tempo passou desde t
func TimeAgo(t time.Time) string {
	if t.IsZero() {
		return "nunca"
	}
	seconds := int(time.Since(t).Seconds())
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d segundos atrás", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%d minutos atrás", seconds/60)
	default:
		return fmt.Sprintf("%d horas atrás", seconds/3600)
	}
}
