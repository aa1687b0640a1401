// Команда loadtest гоняет сценарии покупки билетов через gRPC API и печатает
// сводку по задержкам и кодам ответов.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

const jwtSecretEnv = "TICKETING_JWT_SECRET"

type options struct {
	target string
	// scenarios == 0 допустимо только вместе с duration: гоняем до истечения времени
	scenarios  int
	duration   time.Duration
	workers    int
	conns      int
	rpcTimeout time.Duration
	flow       flow
	refundRate int
	ticketID   string
	quantity   int32
	userPrefix string
	secret     string
	tokenTTL   time.Duration
	reportPath string
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("invalid options: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, opts, os.Stdout)
	if err != nil {
		log.Fatalf("load test failed: %v", err)
	}
	if result.Scenarios.Failed > 0 {
		os.Exit(1)
	}
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	var (
		opts     options
		flowName string
		quantity int
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.StringVar(&opts.target, "addr", "localhost:50051", "адрес gRPC сервера")
	fs.IntVar(&opts.scenarios, "scenarios", 400, "число сценариев; с --duration ограничивает сверху, только если задано явно")
	fs.DurationVar(&opts.duration, "duration", 0, "гонять сценарии заданное время, например 10m")
	fs.IntVar(&opts.workers, "workers", 40, "сколько сценариев выполняется одновременно")
	fs.IntVar(&opts.conns, "connections", 20, "число gRPC соединений")
	fs.DurationVar(&opts.rpcTimeout, "timeout", 5*time.Second, "таймаут одного вызова")
	fs.StringVar(&flowName, "flow", string(flowCheckout), "сценарий: create | checkout | abandon | lifecycle")
	fs.IntVar(&opts.refundRate, "refund-rate", 0, "процент оплаченных заказов, которые затем отменяются (0..100)")
	fs.StringVar(&opts.ticketID, "ticket-id", "ticket-load", "билет, на который оформляются заказы")
	fs.IntVar(&quantity, "quantity", 1, "билетов в заказе")
	fs.StringVar(&opts.userPrefix, "user-prefix", "load", "префикс id участников")
	fs.StringVar(&opts.secret, "jwt-secret", "", "HS256 секрет для токенов (по умолчанию "+jwtSecretEnv+")")
	fs.DurationVar(&opts.tokenTTL, "token-ttl", time.Hour, "срок жизни выпущенных токенов")
	fs.StringVar(&opts.reportPath, "report", "", "куда сохранить отчёт в JSON")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	explicitScenarios := fs.Changed("scenarios")
	if opts.duration > 0 && !explicitScenarios {
		opts.scenarios = 0
	}
	if strings.TrimSpace(opts.secret) == "" {
		opts.secret = getenv(jwtSecretEnv)
	}

	f, err := parseFlow(flowName)
	if err != nil {
		return options{}, err
	}
	opts.flow = f

	switch {
	case opts.duration < 0:
		return options{}, errors.New("duration must be >= 0")
	case opts.duration == 0 && opts.scenarios <= 0:
		return options{}, errors.New("scenarios must be > 0 without duration")
	case explicitScenarios && opts.scenarios <= 0:
		return options{}, errors.New("scenarios must be > 0")
	case opts.workers <= 0:
		return options{}, errors.New("workers must be > 0")
	case opts.conns <= 0:
		return options{}, errors.New("connections must be > 0")
	case opts.rpcTimeout <= 0:
		return options{}, errors.New("timeout must be > 0")
	case quantity <= 0 || quantity > 1<<31-1:
		return options{}, errors.New("quantity must be a positive int32")
	case opts.refundRate < 0 || opts.refundRate > 100:
		return options{}, errors.New("refund-rate must be within 0..100")
	case strings.TrimSpace(opts.ticketID) == "":
		return options{}, errors.New("ticket-id is required")
	case strings.TrimSpace(opts.userPrefix) == "":
		return options{}, errors.New("user-prefix is required")
	case strings.TrimSpace(opts.secret) == "":
		return options{}, fmt.Errorf("jwt secret is required (--jwt-secret or %s)", jwtSecretEnv)
	case opts.tokenTTL <= 0:
		return options{}, errors.New("token-ttl must be > 0")
	}
	opts.quantity = int32(quantity)
	return opts, nil
}

// describe — короткое описание объёма прогона для заголовка отчёта.
func (o options) describe() string {
	switch {
	case o.duration <= 0:
		return fmt.Sprintf("%d scenarios", o.scenarios)
	case o.scenarios > 0:
		return fmt.Sprintf("%s, at most %d scenarios", o.duration, o.scenarios)
	default:
		return o.duration.String()
	}
}
