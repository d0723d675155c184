package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	APIKey    string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-API-Key", c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func main() {
	var (
		baseURL = envOr("FITLEDGER_URL", "http://localhost:8080")
		apiKey  = envOr("FITLEDGER_API_KEY", "")
		out     = envOr("FITLEDGER_OUT", "text")
		timeout = 30 * time.Second
	)

	root := &cobra.Command{
		Use:   "fitledgerctl",
		Short: "CLI de operación para fitledger (endpoints /admin)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				return fmt.Errorf("falta API key (flag --api-key o env FITLEDGER_API_KEY)")
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del servicio (env FITLEDGER_URL)")
	root.PersistentFlags().StringVar(&apiKey, "api-key", apiKey, "API key de operador (env FITLEDGER_API_KEY)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	cl := &client{BaseURL: baseURL, APIKey: apiKey, OutFormat: out, HTTP: &http.Client{Timeout: timeout}}

	// aggregate [--date YYYY-MM-DD]
	var aggDate string
	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Correr el daily aggregator para una fecha",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/admin/aggregate"
			if aggDate != "" {
				path += "?date=" + aggDate
			}
			status, body, err := cl.do("POST", path, nil)
			if err != nil {
				return err
			}
			if status/100 != 2 && status != http.StatusMultiStatus {
				return fmt.Errorf("aggregate falló: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	aggregateCmd.Flags().StringVar(&aggDate, "date", "", "Fecha objetivo YYYY-MM-DD (default: hoy)")

	// sync --event-id
	var syncEvent string
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Disparar un sweep de sync de providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			if syncEvent == "" {
				return fmt.Errorf("--event-id es requerido")
			}
			status, body, err := cl.do("POST", "/admin/sync?event_id="+syncEvent, nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("sync falló: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	syncCmd.Flags().StringVar(&syncEvent, "event-id", "", "Evento de puntos a sincronizar")

	// award --user-id --event-id --source --date --amount
	var (
		awUser, awEvent, awSource, awDate string
		awAmount                          int64
	)
	awardCmd := &cobra.Command{
		Use:   "award",
		Short: "Otorgar puntos manualmente (upsert por clave de ledger)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if awUser == "" || awEvent == "" || awSource == "" {
				return fmt.Errorf("--user-id, --event-id y --source son requeridos")
			}
			payload := map[string]any{
				"user_id":        awUser,
				"event_id":       awEvent,
				"data_source_id": awSource,
				"date":           awDate,
				"amount":         awAmount,
			}
			b, _ := json.Marshal(payload)
			status, body, err := cl.do("POST", "/admin/award", b)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("award falló: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	awardCmd.Flags().StringVar(&awUser, "user-id", "", "Usuario")
	awardCmd.Flags().StringVar(&awEvent, "event-id", "", "Evento")
	awardCmd.Flags().StringVar(&awSource, "source", "manual", "Data source (default manual)")
	awardCmd.Flags().StringVar(&awDate, "date", "", "Fecha YYYY-MM-DD (default: hoy)")
	awardCmd.Flags().Int64Var(&awAmount, "amount", 0, "Cantidad de puntos")

	// pipeline sweep
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Re-barrer el pipeline de webhooks incompletos",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("POST", "/admin/pipeline/sweep", nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("sweep falló: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}

	// snapshots [--date]
	var snapDate string
	snapshotsCmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Listar snapshots diarios de una fecha",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/admin/snapshots"
			if snapDate != "" {
				path += "?date=" + snapDate
			}
			status, body, err := cl.do("GET", path, nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("snapshots falló: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	snapshotsCmd.Flags().StringVar(&snapDate, "date", "", "Fecha YYYY-MM-DD (default: hoy)")

	root.AddCommand(aggregateCmd, syncCmd, awardCmd, sweepCmd, snapshotsCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
