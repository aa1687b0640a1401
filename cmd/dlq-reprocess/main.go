// Команда dlq-reprocess читает ticketing.dlq и возвращает письма в работу:
// сообщения consumer-а уходят в исходный topic, события outbox в topic событий заказов.
// По умолчанию работает в режиме dry-run и только печатает кандидатов.
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

	"github.com/vladislavdragonenkov/ticketing/internal/messaging/kafka"
)

const brokersEnv = "TICKETING_KAFKA_BROKERS"

type options struct {
	brokers     []string
	dlqTopic    string
	orderTopic  string
	limit       int
	execute     bool
	tail        bool
	idleTimeout time.Duration
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	opts := options{}
	var brokers string

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.StringVar(&brokers, "brokers", "", "Kafka brokers, через запятую (по умолчанию "+brokersEnv+")")
	fs.StringVar(&opts.dlqTopic, "source-topic", kafka.TopicDeadLetterQueue, "topic, из которого читаются письма")
	fs.StringVar(&opts.orderTopic, "target-topic", kafka.TopicOrderEvents, "topic для событий заказов из outbox")
	fs.IntVar(&opts.limit, "limit", 100, "сколько писем просмотреть за запуск")
	fs.BoolVar(&opts.execute, "execute", false, "действительно переотправить письма")
	fs.BoolVar(&opts.tail, "from-newest", false, "читать последние limit писем каждой партиции")
	fs.DurationVar(&opts.idleTimeout, "idle-timeout", 2*time.Second, "сколько ждать новых писем в партиции")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if strings.TrimSpace(brokers) == "" {
		brokers = getenv(brokersEnv)
	}
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			opts.brokers = append(opts.brokers, b)
		}
	}

	switch {
	case len(opts.brokers) == 0:
		return options{}, fmt.Errorf("kafka brokers are required (--brokers or %s)", brokersEnv)
	case strings.TrimSpace(opts.dlqTopic) == "":
		return options{}, errors.New("source-topic is required")
	case strings.TrimSpace(opts.orderTopic) == "":
		return options{}, errors.New("target-topic is required")
	case opts.limit <= 0:
		return options{}, errors.New("limit must be > 0")
	case opts.idleTimeout <= 0:
		return options{}, errors.New("idle-timeout must be > 0")
	}
	return opts, nil
}

func run(ctx context.Context, opts options) error {
	source, producer, err := connect(opts)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		_ = source.Close()
	}()

	r, err := newReplayer(opts, source, producer)
	if err != nil {
		return err
	}
	_, err = r.Run(ctx)
	return err
}

func fail(format string, args ...any) {
	log.Errorf(format, args...)
	os.Exit(1)
}
