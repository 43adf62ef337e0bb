package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MessageHandler processes one announcement message.
type MessageHandler func(topic string, payload []byte) error

// Subscriber is the message-bus subscription the announcement strategy
// needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// Announcement is the payload a plugin publishes (retained) to advertise
// itself. An empty payload on the same topic withdraws it.
type Announcement struct {
	Mode    Mode   `json:"mode"`
	Address string `json:"address"`
}

// AnnouncementDiscoverer collects addresses plugins announce on the
// message bus. It subscribes lazily on the first pass.
type AnnouncementDiscoverer struct {
	sub    Subscriber
	filter string
	qos    byte

	mu         sync.RWMutex
	subscribed bool
	announced  map[string]Address // by topic
	logger     Logger
}

// NewAnnouncementDiscoverer creates a discoverer listening on filter
// (typically a single-level wildcard topic).
func NewAnnouncementDiscoverer(sub Subscriber, filter string, qos byte) *AnnouncementDiscoverer {
	return &AnnouncementDiscoverer{
		sub:       sub,
		filter:    filter,
		qos:       qos,
		announced: make(map[string]Address),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for malformed announcements.
func (d *AnnouncementDiscoverer) SetLogger(logger Logger) {
	d.logger = logger
}

// Name implements Discoverer.
func (d *AnnouncementDiscoverer) Name() string { return "announce" }

// Start subscribes to the announcement topic. Calling it again is a no-op.
func (d *AnnouncementDiscoverer) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subscribed {
		return nil
	}
	if err := d.sub.Subscribe(d.filter, d.qos, d.handle); err != nil {
		return fmt.Errorf("%w: subscribing %s: %w", ErrDiscovery, d.filter, err)
	}
	d.subscribed = true
	return nil
}

// Discover implements Discoverer. Addresses are sorted by announcing topic.
func (d *AnnouncementDiscoverer) Discover(context.Context) ([]Address, error) {
	if err := d.Start(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	topics := make([]string, 0, len(d.announced))
	for t := range d.announced {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	addrs := make([]Address, 0, len(topics))
	for _, t := range topics {
		addrs = append(addrs, d.announced[t])
	}
	return addrs, nil
}

func (d *AnnouncementDiscoverer) handle(topic string, payload []byte) error {
	if len(payload) == 0 {
		d.mu.Lock()
		delete(d.announced, topic)
		d.mu.Unlock()
		return nil
	}

	var a Announcement
	if err := json.Unmarshal(payload, &a); err != nil {
		d.logger.Warn("malformed plugin announcement", "topic", topic, "error", err)
		return fmt.Errorf("decoding announcement: %w", err)
	}
	addr := Address{Mode: a.Mode, Address: a.Address}
	if addr.Mode == "" {
		addr.Mode = ModeTCP
	}
	if err := addr.Validate(); err != nil {
		d.logger.Warn("invalid plugin announcement", "topic", topic, "error", err)
		return err
	}

	d.mu.Lock()
	d.announced[topic] = addr
	d.mu.Unlock()
	return nil
}
