package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"procuredata.io/internal/dataspace"
)

type copyText struct {
	title   string
	message string
}

// inApp builds the notification title and message for an event. Titles always
// carry the product name.
func inApp(ev dataspace.Event, d dataspace.TransactionDetails) copyText {
	p := d.ProductName
	switch ev {
	case dataspace.EventCreated:
		return copyText{
			title:   fmt.Sprintf("Nueva solicitud de acceso: %s", p),
			message: fmt.Sprintf("%s solicita acceso a %s. Revisa la solicitud para pre-aprobarla o denegarla.", d.ConsumerOrgName, p),
		}
	case dataspace.EventPreApproved:
		return copyText{
			title:   fmt.Sprintf("Solicitud pre-aprobada: %s", p),
			message: fmt.Sprintf("%s ha pre-aprobado la solicitud de %s. Se requiere tu aprobación final.", d.SubjectOrgName, d.ConsumerOrgName),
		}
	case dataspace.EventApproved:
		return copyText{
			title:   fmt.Sprintf("Solicitud aprobada: %s", p),
			message: fmt.Sprintf("%s ha aprobado tu solicitud de acceso a %s.", d.HolderOrgName, p),
		}
	case dataspace.EventDenied:
		return copyText{
			title:   fmt.Sprintf("Solicitud denegada: %s", p),
			message: fmt.Sprintf("Tu solicitud de acceso a %s ha sido denegada.", p),
		}
	default:
		return copyText{
			title:   fmt.Sprintf("Transacción completada: %s", p),
			message: fmt.Sprintf("Los datos de %s ya están disponibles para %s.", p, d.ConsumerOrgName),
		}
	}
}

const layout = `<!DOCTYPE html>
<html lang="es">
<body style="font-family:Arial,sans-serif;color:#1f2937;max-width:600px;margin:0 auto;padding:24px">
<h1 style="font-size:20px;color:#0f172a">{{template "heading" .}}</h1>
{{template "body" .}}
<table style="margin:16px 0;border-collapse:collapse">
<tr><td style="padding:4px 12px 4px 0;color:#6b7280">Producto</td><td>{{.ProductName}}</td></tr>
<tr><td style="padding:4px 12px 4px 0;color:#6b7280">Solicitante</td><td>{{.ConsumerOrgName}}</td></tr>
{{if .Purpose}}<tr><td style="padding:4px 12px 4px 0;color:#6b7280">Finalidad</td><td>{{.Purpose}}</td></tr>{{end}}
</table>
<p><a href="{{.Link}}" style="display:inline-block;background:#2563eb;color:#fff;padding:10px 18px;border-radius:6px;text-decoration:none">Ver solicitud</a></p>
<p style="font-size:12px;color:#9ca3af">ProcureData · Espacio de datos PONTUS-X</p>
</body>
</html>`

var bodies = map[dataspace.Event]string{
	dataspace.EventCreated: `{{define "heading"}}Nueva solicitud de acceso{{end}}
{{define "body"}}<p>Hola {{.RecipientName}},</p>
<p><strong>{{.ConsumerOrgName}}</strong> ha solicitado acceso a datos de tu organización <strong>{{.SubjectOrgName}}</strong>, custodiados por {{.HolderOrgName}}. Como sujeto de los datos debes pre-aprobar o denegar la solicitud.</p>{{end}}`,
	dataspace.EventPreApproved: `{{define "heading"}}Solicitud pendiente de aprobación final{{end}}
{{define "body"}}<p>Hola {{.RecipientName}},</p>
<p><strong>{{.SubjectOrgName}}</strong> ha pre-aprobado la solicitud de <strong>{{.ConsumerOrgName}}</strong>. Como custodio de los datos, {{.HolderOrgName}} debe dar la aprobación final.</p>{{end}}`,
	dataspace.EventApproved: `{{define "heading"}}Tu solicitud ha sido aprobada{{end}}
{{define "body"}}<p>Hola {{.RecipientName}},</p>
<p><strong>{{.HolderOrgName}}</strong> ha aprobado tu solicitud de acceso a {{.ProductName}}. Recibirás los datos en breve.</p>{{end}}`,
	dataspace.EventDenied: `{{define "heading"}}Tu solicitud ha sido denegada{{end}}
{{define "body"}}<p>Hola {{.RecipientName}},</p>
<p>La solicitud de acceso a {{.ProductName}} no ha sido aprobada. Puedes revisar el historial para ver los motivos.</p>{{end}}`,
	dataspace.EventCompleted: `{{define "heading"}}Transacción completada{{end}}
{{define "body"}}<p>Hola {{.RecipientName}},</p>
<p>La transacción de {{.ProductName}} se ha completado. Los datos ya están disponibles en tu panel.</p>{{end}}`,
}

var emailTemplates = func() map[dataspace.Event]*template.Template {
	out := make(map[dataspace.Event]*template.Template, len(bodies))
	for ev, body := range bodies {
		t := template.Must(template.New(string(ev)).Parse(layout))
		out[ev] = template.Must(t.Parse(body))
	}
	return out
}()

type emailData struct {
	RecipientName   string
	ProductName     string
	ConsumerOrgName string
	SubjectOrgName  string
	HolderOrgName   string
	Purpose         string
	Link            string
}

func renderEmail(ev dataspace.Event, data emailData) (string, error) {
	t, ok := emailTemplates[ev]
	if !ok {
		return "", fmt.Errorf("%w: no email template for %s", dataspace.ErrInvalidRequest, ev)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
