package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/AntonyGarand/bs-map-tools/internal/annotation"
	"github.com/AntonyGarand/bs-map-tools/internal/logging"
	"github.com/google/uuid"
)

// ErrBusClosed публикация в закрытую шину
var ErrBusClosed = errors.New("event bus closed")

// EventTypePrefix префикс типов событий аннотаций
const EventTypePrefix = "annotation."

// payloadVersion версия схемы annotation.Change в Payload
const payloadVersion = 1

// Bridge переводит уведомления annotation.Store в события шины.
type Bridge struct {
	bus     EventBus
	source  string
	timeout time.Duration
	logger  *logging.Logger
}

// NewBridge создаёт мост; source попадает в Envelope.Source
func NewBridge(bus EventBus, source string) *Bridge {
	return &Bridge{
		bus:     bus,
		source:  source,
		timeout: 2 * time.Second,
		logger:  logging.GetComponentLogger(logging.ComponentEventBus),
	}
}

// Envelope строит событие из изменения
func (b *Bridge) Envelope(c annotation.Change) (*Envelope, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    b.source,
		EventType: EventTypePrefix + string(c.Kind),
		Version:   payloadVersion,
		Priority:  1,
		Payload:   payload,
		Metadata:  map[string]string{"collection": c.Collection},
	}, nil
}

// Observer возвращает наблюдателя для annotation.Store.Subscribe.
// Ошибки публикации только логируются: шина не влияет на работу с аннотациями.
func (b *Bridge) Observer() func(annotation.Change) {
	return func(c annotation.Change) {
		ev, err := b.Envelope(c)
		if err != nil {
			b.logger.Warn("⚠️ Не удалось сериализовать изменение %s: %v", c.Kind, err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		if err := b.bus.Publish(ctx, ev); err != nil {
			b.logger.Warn("⚠️ Не удалось опубликовать %s: %v", ev.EventType, err)
			return
		}
		b.logger.Debug("📨 %s %s[%d] %q", ev.EventType, c.Collection, c.Index, c.Name)
	}
}

// DecodeChange извлекает annotation.Change из события
func DecodeChange(ev *Envelope) (annotation.Change, error) {
	var c annotation.Change
	err := json.Unmarshal(ev.Payload, &c)
	return c, err
}
