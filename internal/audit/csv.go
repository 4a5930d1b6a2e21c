package audit

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	"procuredata.io/internal/dataspace"
)

var csvHeader = []string{"Fecha", "Usuario", "Acción", "Recurso", "Detalles"}

// WriteCSV renders audit logs as the downloadable export. An empty slice yields
// only the header row.
func WriteCSV(w io.Writer, logs []dataspace.AuditLog) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, l := range logs {
		user := l.UserEmail
		if user == "" {
			user = l.UserID
		}
		details := ""
		if len(l.Details) > 0 {
			raw, err := json.Marshal(l.Details)
			if err != nil {
				return err
			}
			details = string(raw)
		}
		row := []string{
			l.CreatedAt.UTC().Format(time.RFC3339),
			user,
			l.Action,
			l.Resource,
			details,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
