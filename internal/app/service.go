package app

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/manovate/crm/internal/domain"
)

// Default record-store keys.
const (
	DefaultDealsKey         = "manovate_deals_v4"
	DefaultNotificationsKey = "crm_notifications"
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	DealsKey          string
	NotificationsKey  string
	SeedDemoDeals     bool
	SeedNotifications bool
	AuthorName        string
	Logger            *log.Logger
}

// IDGenerator returns candidate identifiers for new records.
// The service bumps a candidate past any id it has already issued or stored.
type IDGenerator func() int64

// Clock returns the current time.
type Clock func() time.Time

// Service owns the deals pipeline. Every read-mutate-persist sequence holds mu.
type Service struct {
	mu            sync.Mutex
	store         *RecordStore
	deals         Collection[dealRecord]
	notifications Collection[notificationRecord]
	idGen         IDGenerator
	clock         Clock
	author        string
	logger        *log.Logger
	lastID        int64
}

// NewService constructs a new value for this package.
func NewService(store *RecordStore, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if clock == nil {
		clock = time.Now
	}
	if idGen == nil {
		idGen = func() int64 { return clock().UnixMilli() }
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	if strings.TrimSpace(cfg.DealsKey) == "" {
		cfg.DealsKey = DefaultDealsKey
	}
	if strings.TrimSpace(cfg.NotificationsKey) == "" {
		cfg.NotificationsKey = DefaultNotificationsKey
	}
	author := strings.TrimSpace(cfg.AuthorName)
	if author == "" {
		author = domain.DefaultAuthorName
	}

	s := &Service{
		store:  store,
		idGen:  idGen,
		clock:  clock,
		author: author,
		logger: cfg.Logger,
	}
	dealSeed := func() []dealRecord { return nil }
	if cfg.SeedDemoDeals {
		dealSeed = demoDealRecords
	}
	notificationSeed := func() []notificationRecord { return nil }
	if cfg.SeedNotifications {
		notificationSeed = func() []notificationRecord { return demoNotificationRecords(s.clock()) }
	}
	s.deals = NewCollection(store, cfg.DealsKey, dealSeed)
	s.notifications = NewCollection(store, cfg.NotificationsKey, notificationSeed)
	return s
}

// Subscribe registers a change listener on the underlying record store.
func (s *Service) Subscribe(fn func(ChangeEvent)) func() {
	return s.store.Events().Subscribe(fn)
}

// AuthorName returns the display name used for new comments.
func (s *Service) AuthorName() string {
	return s.author
}

// Keys returns the deals and notifications storage keys.
func (s *Service) Keys() (deals, notifications string) {
	return s.deals.Key(), s.notifications.Key()
}

// nextID issues an identifier greater than floor and every id issued before.
func (s *Service) nextID(floor int64) int64 {
	id := s.idGen()
	if id <= floor {
		id = floor + 1
	}
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}
