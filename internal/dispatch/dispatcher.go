package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"faillog/internal/classifier"
	"faillog/internal/config"
	"faillog/internal/gateway/notifier"
	"faillog/internal/logger"
)

// Commander sends one administrative command to the game server.
type Commander interface {
	SendCommand(ctx context.Context, words ...string) error
}

// Sink receives every rendered record (journal, stream, live feed).
type Sink interface {
	Name() string
	Publish(ctx context.Context, r Record) error
}

// MailerFactory builds a Mailer for the current SMTP settings.
type MailerFactory func(config.EmailConfig) Mailer

// Dispatcher 在事件循环上渲染副作用并投递到 Queue；自身不做任何阻塞 I/O。
// Apply 与 Dispatch 只能在同一个协程调用。
type Dispatcher struct {
	queue     *Queue
	files     *FileLog
	commander Commander
	notifier  notifier.TextNotifier
	sinks     []Sink

	newMailer  MailerFactory
	httpClient *http.Client

	actions       config.ActionsConfig
	email         config.EmailConfig
	pluginVersion string
	beacon        *Beacon
	mailer        Mailer
}

// Options groups the collaborators of a Dispatcher. Nil members disable their channel.
type Options struct {
	Queue      *Queue
	Commander  Commander
	Notifier   notifier.TextNotifier
	Sinks      []Sink
	NewMailer  MailerFactory
	HTTPClient *http.Client
}

func NewDispatcher(cfg *config.Config, opts Options) *Dispatcher {
	if opts.Queue == nil {
		opts.Queue = NewQueue(cfg.Actions.Workers, cfg.Actions.QueueSize)
	}
	if opts.NewMailer == nil {
		opts.NewMailer = func(c config.EmailConfig) Mailer { return NewSMTPMailer(c) }
	}
	d := &Dispatcher{
		queue:      opts.Queue,
		commander:  opts.Commander,
		notifier:   opts.Notifier,
		sinks:      opts.Sinks,
		newMailer:  opts.NewMailer,
		httpClient: opts.HTTPClient,
	}
	d.Apply(cfg)
	return d
}

func (d *Dispatcher) Queue() *Queue { return d.queue }

// Apply takes a new configuration snapshot.
func (d *Dispatcher) Apply(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if d.beacon == nil || d.actions.BeaconURL != cfg.Actions.BeaconURL {
		d.beacon = NewBeacon(cfg.Actions.BeaconURL, d.httpClient)
	}
	if d.files == nil || d.actions.LogDir != cfg.Actions.LogDir {
		d.files = NewFileLog(cfg.Actions.LogDir)
	}
	d.actions = cfg.Actions
	if d.mailer == nil || !sameEmail(d.email, cfg.Email) {
		d.email = cfg.Email
		d.email.Recipients = append([]string(nil), cfg.Email.Recipients...)
		d.email.Message = append([]string(nil), cfg.Email.Message...)
		d.mailer = d.newMailer(d.email)
	}
	d.pluginVersion = cfg.Version.Current
}

// Dispatch logs r and fans it out to every enabled channel.
func (d *Dispatcher) Dispatch(r Record) {
	logger.Warnf("[dispatch] %s", r.Line)

	if d.actions.EnableLogToFile {
		file := d.actions.LogFile
		entry := d.files.Entry(r.Host, r.Port, r.Line)
		d.submit("filelog", func(context.Context) error {
			return d.files.Append(file, entry)
		})
	}

	if r.Event.Kind == classifier.KindBlazeDisconnect {
		if d.actions.EnableWebLog {
			beacon := d.beacon
			url := beacon.URL(r, d.pluginVersion)
			logger.Tracef(5, "[dispatch] beacon %s", url)
			d.submit("beacon", func(ctx context.Context) error {
				err := beacon.Send(ctx, url)
				if errors.Is(err, ErrBeaconRejected) && logger.Enabled(3) {
					logger.Warnf("[dispatch] BlazeReport didn't contain valid response!")
				}
				return err
			})
		}
		if d.actions.EnableEmailOnBlaze {
			mailer := d.mailer
			msg := RenderEmail(d.email, r)
			logger.Tracef(4, "[dispatch] Preparing BlazeReport-email...")
			logger.Tracef(7, "[dispatch] BlazeReport-email subject: %s", msg.Subject)
			logger.Tracef(7, "[dispatch] BlazeReport-email body: %s", msg.HTML)
			d.submit("email", func(ctx context.Context) error {
				err := mailer.Send(ctx, msg)
				if err != nil && logger.Enabled(3) {
					logger.Errorf("[dispatch] exception while sending BlazeReport-email: %v", err)
				}
				return err
			})
		}
	}

	if d.notifier != nil {
		text := telegramMessage(r).RenderMarkdown()
		n := d.notifier
		d.submit("notify", func(ctx context.Context) error {
			return n.SendText(ctx, text)
		})
	}

	for _, sink := range d.sinks {
		d.submit(sink.Name(), func(ctx context.Context) error {
			return sink.Publish(ctx, r)
		})
	}
}

// ScheduleRestart queues one admin.shutDown after delaySeconds. Cancelling session aborts it.
// A delayed restart waits on a timer, not on a worker; failed is called from the timer
// goroutine when the shutdown cannot be queued once the delay has passed.
func (d *Dispatcher) ScheduleRestart(session context.Context, delaySeconds int, failed func(error)) error {
	if d.commander == nil {
		return errors.New("dispatch: no commander for restart")
	}
	if session == nil {
		session = context.Background()
	}
	task := restartTask(session, d.commander)
	if delaySeconds <= 0 {
		if err := d.queue.Submit(task); err != nil {
			return err
		}
		logger.WarnBlock(" \nRESTARTING GAME SERVER WITH ADMIN SHUTDOWN!\n ")
		return nil
	}

	logger.WarnBlock(fmt.Sprintf(" \nRESTARTING GAME SERVER WITH ADMIN SHUTDOWN AFTER %d SECONDS!\n ", delaySeconds))
	queue := d.queue
	timer := time.AfterFunc(time.Duration(delaySeconds)*time.Second, func() {
		if session.Err() != nil {
			return
		}
		if err := queue.Submit(task); err != nil {
			logger.Errorf("[dispatch] queue delayed restart: %v", err)
			if failed != nil {
				failed(err)
			}
		}
	})
	context.AfterFunc(session, func() {
		if timer.Stop() {
			logger.Warnf("[dispatch] scheduled restart cancelled")
		}
	})
	return nil
}

func restartTask(session context.Context, commander Commander) Task {
	return Task{Name: "restart", Run: func(ctx context.Context) error {
		ctx, cancel := mergeCancel(ctx, session)
		defer cancel()
		if err := ctx.Err(); err != nil {
			logger.Warnf("[dispatch] scheduled restart cancelled")
			return err
		}
		logger.Warnf("[dispatch] RESTARTING GAME SERVER WITH ADMIN SHUTDOWN!")
		return commander.SendCommand(ctx, "admin.shutDown")
	}}
}

func (d *Dispatcher) submit(name string, fn func(context.Context) error) {
	if err := d.queue.Submit(Task{Name: name, Run: fn}); err != nil {
		logger.Warnf("[dispatch] drop %s task: %v", name, err)
	}
}

func sameEmail(a, b config.EmailConfig) bool {
	if !slices.Equal(a.Recipients, b.Recipients) || !slices.Equal(a.Message, b.Message) {
		return false
	}
	return a.Sender == b.Sender &&
		a.Subject == b.Subject &&
		a.SMTPHostname == b.SMTPHostname &&
		a.SMTPPort == b.SMTPPort &&
		a.SMTPUseSSL == b.SMTPUseSSL &&
		a.SMTPUsername == b.SMTPUsername &&
		a.SMTPPassword == b.SMTPPassword
}

// mergeCancel returns a context cancelled when either parent is done.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func telegramMessage(r Record) notifier.StructuredMessage {
	return notifier.StructuredMessage{
		Icon:  "⚠️",
		Title: fmt.Sprintf("FailLog %s", r.Event.Kind),
		Sections: []notifier.MessageSection{
			{Title: "Server", Lines: []string{
				"Name: " + r.ServerName,
				"Address: " + r.Host + ":" + r.Port,
				"Region: " + r.RegionCountry,
			}},
			{Title: "State", Lines: []string{
				"Map: " + r.Map + " / " + r.Mode,
				"Round: " + r.Round,
				"Players: " + r.Players,
				"Uptime: " + r.Uptime,
			}},
		},
		Footer:    r.Event.ID,
		Timestamp: r.Event.DetectedAt,
	}
}
