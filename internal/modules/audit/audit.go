package audit

import (
	"context"
	"sync"
	"time"

	"sentinel-guard/internal/metrics"
	"sentinel-guard/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"

	writeTimeout = 5 * time.Second
)

type Store interface {
	AddAuditLog(ctx context.Context, log storage.AuditLog) error
	AddThreatLog(ctx context.Context, log storage.ThreatLog) error
	IncrementInfraction(ctx context.Context, guildID, userID, category, lastAction string, forgiveAfter time.Duration) (int, error)
}

type Options struct {
	QueueSize    int
	ForgiveAfter time.Duration
	StoreContent bool
}

// Logger records admin events synchronously and threat logs through a
// bounded queue drained by one worker, so detection never waits on storage.
type Logger struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	opts    Options
	notify  func(context.Context, storage.ThreatLog)

	mu     sync.RWMutex
	closed bool
	queue  chan storage.ThreatLog
	done   chan struct{}
}

func NewLogger(store Store, logger *zap.Logger, m *metrics.Metrics, opts Options) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	l := &Logger{
		store:   store,
		logger:  logger,
		metrics: m,
		opts:    opts,
		queue:   make(chan storage.ThreatLog, opts.QueueSize),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// SetNotifier registers a callback for every persisted threat log. Call it
// before the first Threat.
func (l *Logger) SetNotifier(notify func(context.Context, storage.ThreatLog)) {
	l.notify = notify
}

func (l *Logger) Log(ctx context.Context, level, guildID, userID, event, details string) {
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if l.store != nil {
		if err := l.store.AddAuditLog(ctx, entry); err != nil {
			l.logger.Warn("audit log write failed", zap.String("event", event), zap.Error(err))
		}
	}
	l.logger.Info("audit", zap.String("level", level), zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("event", event), zap.String("details", details))
}

// Threat queues record for persistence. It reports false when the record was
// dropped because the queue is full or the logger is closed.
func (l *Logger) Threat(record storage.ThreatLog) bool {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if !l.opts.StoreContent {
		record.MessageContent = ""
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return false
	}
	select {
	case l.queue <- record:
		return true
	default:
		l.metrics.AuditDropped()
		l.logger.Warn("threat log dropped", zap.String("guild_id", record.GuildID), zap.String("user_id", record.UserID), zap.String("threat", record.ThreatType))
		return false
	}
}

// Close stops accepting records and waits until the queue is drained.
func (l *Logger) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	<-l.done
}

func (l *Logger) run() {
	defer close(l.done)
	for record := range l.queue {
		l.write(record)
	}
}

func (l *Logger) write(record storage.ThreatLog) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if l.store != nil {
		count, err := l.store.IncrementInfraction(ctx, record.GuildID, record.UserID, record.ThreatType, record.ActionTaken, l.opts.ForgiveAfter)
		if err != nil {
			l.logger.Warn("infraction update failed", zap.String("user_id", record.UserID), zap.Error(err))
		} else {
			metadata := make(map[string]any, len(record.Metadata)+1)
			for key, value := range record.Metadata {
				metadata[key] = value
			}
			metadata["infraction_count"] = count
			record.Metadata = metadata
		}
		if err := l.store.AddThreatLog(ctx, record); err != nil {
			l.logger.Warn("threat log write failed", zap.String("user_id", record.UserID), zap.Error(err))
		}
	}

	l.logger.Info("threat detected",
		zap.String("guild_id", record.GuildID),
		zap.String("user_id", record.UserID),
		zap.String("threat", record.ThreatType),
		zap.Float64("severity", record.Severity),
		zap.String("action", record.ActionTaken),
		zap.String("message_id", record.MessageID),
		zap.Any("metadata", record.Metadata),
	)
	if l.notify != nil {
		l.notify(ctx, record)
	}
}
