// Command probe sends one message through the full companion pipeline using the
// configured providers and prints the routing outcome. Useful for checking
// provider credentials and crisis routing without starting the API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/wellness-companion/internal/app/bootstrap"
	"github.com/wolfman30/wellness-companion/internal/companion"
	appconfig "github.com/wolfman30/wellness-companion/internal/config"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

func main() {
	message := flag.String("message", "I've been sleeping badly and feel anxious before work.", "message to send")
	stream := flag.Bool("stream", false, "stream the reply as it is generated")
	timeout := flag.Duration("timeout", 90*time.Second, "overall deadline")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found, using environment variables")
	}
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, cfg, logger, *message, *stream, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, message string, stream bool, out io.Writer) error {
	// Summaries would outlive the probe.
	cfg.InlineSummaries = true

	app, err := bootstrap.BuildApp(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer app.Close()

	req := companion.Request{
		UserMessage:    message,
		ConversationID: fmt.Sprintf("probe-%d", time.Now().UnixNano()),
		UserID:         "probe",
	}

	start := time.Now()
	var resp *companion.Response
	if stream {
		resp, err = app.Orchestrator.RespondStream(ctx, req, func(chunk string) error {
			_, werr := io.WriteString(out, chunk)
			return werr
		})
		fmt.Fprintln(out)
	} else {
		resp, err = app.Orchestrator.Respond(ctx, req)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s\n", strings.Repeat("=", 60))
	if !stream {
		fmt.Fprintf(out, "%s\n\n", resp.Response)
	}
	fmt.Fprintf(out, "elapsed:        %v\n", time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(out, "should alert:   %v\n", resp.ShouldAlert)
	fmt.Fprintf(out, "incomplete:     %v\n", resp.Incomplete)
	fmt.Fprintf(out, "research used:  %s\n", strings.Join(resp.ResearchUsed, ", "))
	if resp.CrisisData != nil {
		fmt.Fprintf(out, "risk level:     %s\n", resp.CrisisData.RiskLevel)
		fmt.Fprintf(out, "indicators:     %s\n", strings.Join(resp.CrisisData.DetectedIndicators, "; "))
		if q := resp.CrisisData.NextQuestion; q != nil {
			fmt.Fprintf(out, "next question:  %d. %s\n", q.Number, q.Text)
		}
	}
	return nil
}
