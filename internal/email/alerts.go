package email

import (
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/fitledger/internal/tracker"
)

// Alerter notifica al operador cuando un run del aggregator termina en
// partial failure. Los snapshots son recomputables, así que esto es
// diagnóstico, nunca bloqueo.
type Alerter struct {
	Sender   Sender
	Operator string // destinatario; vacío desactiva las alertas
}

// AggregationPartialFailure arma y envía el reporte de providers fallidos.
func (a *Alerter) AggregationPartialFailure(report tracker.Report) error {
	if a.Sender == nil || a.Operator == "" {
		return nil
	}
	failed := report.Failed()
	if len(failed) == 0 {
		return nil
	}

	date := report.Date.UTC().Format("2006-01-02")
	subject := fmt.Sprintf("[fitledger] aggregation partial failure %s (%d providers)", date, len(failed))

	var b strings.Builder
	fmt.Fprintf(&b, "Daily aggregation for %s finished with errors.\n\n", date)
	for _, pr := range failed {
		fmt.Fprintf(&b, "  - %s: %v\n", pr.Provider, pr.Err)
	}
	b.WriteString("\nSnapshots for failed providers were not written; re-run the job after the cause clears.\n")
	fmt.Fprintf(&b, "Generated at %s.\n", time.Now().UTC().Format(time.RFC3339))

	return a.Sender.Send(a.Operator, subject, "", b.String())
}
