package order

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"scalping-core/internal/events"
	"scalping-core/internal/risk"
	"scalping-core/internal/signal"
	"scalping-core/pkg/db"
	"scalping-core/pkg/deriv"

	"github.com/google/uuid"
)

// Config wires a Manager.
type Config struct {
	Venue          Venue
	Gate           *risk.Gate
	Database       *db.Database
	Bus            *events.Bus
	Symbol         string
	TickInterval   time.Duration // nominal venue tick spacing
	ExpiryMargin   float64       // safety multiplier over requested duration
	SweepInterval  time.Duration
	CompletedLimit int
}

// Manager owns every order from submission to terminal status: it gates
// candidates through the risk engine, places approved orders on the venue,
// reconciles asynchronous contract pushes, and force-expires orders that
// never receive a terminal push.
type Manager struct {
	venue          Venue
	gate           *risk.Gate
	database       *db.Database
	bus            *events.Bus
	symbol         string
	tickInterval   time.Duration
	expiryMargin   float64
	sweepInterval  time.Duration
	completedLimit int

	mu        sync.Mutex
	active    map[string]*Order // local id -> order
	contracts map[string]string // venue contract id -> local id
	completed []*Order

	total      int
	successful int
	failed     int
	rejected   int

	now func() time.Time
}

// NewManager builds a lifecycle manager.
func NewManager(cfg Config) *Manager {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 2 * time.Second
	}
	if cfg.ExpiryMargin <= 0 {
		cfg.ExpiryMargin = 1.5
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	if cfg.CompletedLimit <= 0 {
		cfg.CompletedLimit = 1000
	}
	return &Manager{
		venue:          cfg.Venue,
		gate:           cfg.Gate,
		database:       cfg.Database,
		bus:            cfg.Bus,
		symbol:         cfg.Symbol,
		tickInterval:   cfg.TickInterval,
		expiryMargin:   cfg.ExpiryMargin,
		sweepInterval:  cfg.SweepInterval,
		completedLimit: cfg.CompletedLimit,
		active:         make(map[string]*Order),
		contracts:      make(map[string]string),
		now:            time.Now,
	}
}

// Load seeds tracked orders from the database on startup. ACTIVE orders
// resume tracking; PENDING rows are leftovers from a crash mid-submission
// and are closed out as ERROR.
func (m *Manager) Load(ctx context.Context) error {
	if m.database == nil {
		return nil
	}
	rows, err := m.database.ListOpenOrders(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	restored := 0
	for _, row := range rows {
		o := fromRow(row)
		if o.Status != StatusActive {
			o.Status = StatusError
			o.ExitTime = m.now()
			m.appendCompletedLocked(o)
			m.persist(ctx, o)
			continue
		}
		m.active[o.ID] = o
		if o.ContractID != "" {
			m.contracts[o.ContractID] = o.ID
		}
		restored++
	}
	m.mu.Unlock()

	if restored > 0 {
		log.Printf("lifecycle: restored %d active order(s)", restored)
	}
	return nil
}

// Start launches the periodic expiry sweep.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweepExpired()
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf("lifecycle: expiry sweep started (interval %v, margin %.2f)", m.sweepInterval, m.expiryMargin)
}

// Submit runs a candidate through the risk gate and, if approved, places it
// on the venue. A rejected candidate causes no venue interaction and no
// Order is retained. A placement that fails at the transport is closed out
// as ERROR without a risk record, since no risk was actually taken.
func (m *Manager) Submit(ctx context.Context, candidate signal.Candidate, snapshot signal.AccountSnapshot) (*Report, error) {
	decision := m.gate.Evaluate(candidate, snapshot)
	if !decision.Approved() {
		m.mu.Lock()
		m.rejected++
		m.mu.Unlock()
		if m.bus != nil {
			m.bus.Publish(events.EventOrderRejected, strings.Join(decision.Reasons, "; "))
		}
		return &Report{Decision: decision}, nil
	}

	o := &Order{
		ID:         uuid.NewString(),
		Symbol:     m.symbol,
		Direction:  candidate.Direction,
		Stake:      decision.Stake,
		Duration:   candidate.Duration,
		EntryPrice: candidate.EntryPrice,
		EntryTime:  m.now(),
		Status:     StatusPending,
		Strategy:   candidate.Strategy,
	}
	if m.bus != nil {
		m.bus.Publish(events.EventOrderSubmitted, *o)
	}

	placement, err := m.venue.PlaceContract(ctx, candidate.Direction, m.symbol, decision.Stake, candidate.Duration)
	if err != nil {
		o.Status = StatusError
		o.ExitTime = m.now()
		m.mu.Lock()
		m.total++
		m.failed++
		m.appendCompletedLocked(o)
		m.mu.Unlock()
		m.persist(ctx, o)
		ref := *o
		return &Report{Decision: decision, Order: &ref}, fmt.Errorf("place order: %w", err)
	}

	o.ContractID = placement.ContractID
	o.Payout = placement.Payout
	o.Status = StatusActive

	m.mu.Lock()
	m.total++
	m.successful++
	m.active[o.ID] = o
	if o.ContractID != "" {
		m.contracts[o.ContractID] = o.ID
	}
	ref := *o
	m.mu.Unlock()

	m.persist(ctx, &ref)
	if m.bus != nil {
		m.bus.Publish(events.EventOrderActive, ref)
	}
	log.Printf("lifecycle: order %s placed (%s $%.2f for %d ticks, contract %s)",
		o.ID, candidate.Direction, decision.Stake, candidate.Duration, o.ContractID)

	return &Report{Decision: decision, Order: &ref}, nil
}

// HandleContractUpdate routes one contract-status push to its order. Spot
// updates keep the exit price current while the contract is open; the
// settled push is final and completes the order exactly once. Pushes for
// unknown contract ids, including late duplicates for already-settled
// orders, are ignored.
func (m *Manager) HandleContractUpdate(status deriv.ContractStatus) {
	contractID := strconv.FormatInt(status.ContractID, 10)

	m.mu.Lock()
	localID, ok := m.contracts[contractID]
	if !ok {
		m.mu.Unlock()
		return
	}
	o := m.active[localID]
	if o == nil {
		delete(m.contracts, contractID)
		m.mu.Unlock()
		return
	}

	if !status.Sold() {
		if status.CurrentSpot != 0 {
			o.ExitPrice = status.CurrentSpot
		}
		m.mu.Unlock()
		return
	}

	o.ExitTime = m.now()
	if status.SellSpot != 0 {
		o.ExitPrice = status.SellSpot
	}
	buyPrice := status.BuyPrice
	if buyPrice == 0 {
		buyPrice = o.Stake
	}
	o.PnL = status.SellPrice - buyPrice
	if o.PnL > 0 {
		o.Status = StatusWon
	} else {
		o.Status = StatusLost
	}

	// Dropping the mapping here closes the window for duplicate or late
	// pushes to resurrect a finished order.
	delete(m.contracts, contractID)
	delete(m.active, localID)
	m.appendCompletedLocked(o)
	settled := *o
	m.mu.Unlock()

	m.persist(context.Background(), &settled)
	m.gate.Record(risk.Outcome{PnL: settled.PnL, Won: settled.Status == StatusWon})
	if m.bus != nil {
		m.bus.Publish(events.EventSettlement, events.Settlement{
			OrderID: settled.ID,
			Status:  string(settled.Status),
			PnL:     settled.PnL,
		})
	}
	log.Printf("lifecycle: order %s settled %s pnl=$%.2f", settled.ID, settled.Status, settled.PnL)
}

// sweepExpired forces any ACTIVE order past its expiry deadline to ERROR.
// This should be rare: it means a terminal push was missed, so it is
// surfaced loudly rather than silently dropped.
func (m *Manager) sweepExpired() {
	now := m.now()

	m.mu.Lock()
	var expired []*Order
	for id, o := range m.active {
		if now.Before(o.EntryTime.Add(m.expiryDeadline(o.Duration))) {
			continue
		}
		o.Status = StatusError
		o.ExitTime = now
		delete(m.active, id)
		if o.ContractID != "" {
			delete(m.contracts, o.ContractID)
		}
		m.appendCompletedLocked(o)
		expired = append(expired, o)
	}
	m.mu.Unlock()

	for _, o := range expired {
		ref := *o
		m.persist(context.Background(), &ref)
		log.Printf("lifecycle: order %s expired without a terminal push, forced to ERROR", o.ID)
		if m.bus != nil {
			m.bus.Publish(events.EventReconciliationGap, events.ReconciliationGap{
				OrderID:    o.ID,
				ContractID: o.ContractID,
				AgeSeconds: int64(now.Sub(o.EntryTime).Seconds()),
			})
		}
	}
}

// expiryDeadline converts a tick-denominated duration into the wall-clock
// span the sweep waits before treating an order as lost to a missed push.
func (m *Manager) expiryDeadline(durationTicks int) time.Duration {
	return time.Duration(float64(durationTicks) * m.expiryMargin * float64(m.tickInterval))
}

// Shutdown marks remaining ACTIVE orders CANCELLED, with ctx bounding the
// persistence writes. Best-effort local bookkeeping only; the venue is not
// asked to cancel the contracts.
func (m *Manager) Shutdown(ctx context.Context) {
	now := m.now()

	m.mu.Lock()
	var cancelled []*Order
	for id, o := range m.active {
		o.Status = StatusCancelled
		o.ExitTime = now
		delete(m.active, id)
		if o.ContractID != "" {
			delete(m.contracts, o.ContractID)
		}
		m.appendCompletedLocked(o)
		cancelled = append(cancelled, o)
	}
	m.mu.Unlock()

	for _, o := range cancelled {
		ref := *o
		m.persist(ctx, &ref)
	}
	if len(cancelled) > 0 {
		log.Printf("lifecycle: cancelled %d active order(s) during shutdown", len(cancelled))
	}
}

// ActiveOrders returns copies of the orders still being tracked.
func (m *Manager) ActiveOrders() []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Order, 0, len(m.active))
	for _, o := range m.active {
		out = append(out, *o)
	}
	return out
}

// RecentOrders returns up to n most recently completed orders, newest last.
func (m *Manager) RecentOrders(n int) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := len(m.completed) - n
	if start < 0 {
		start = 0
	}
	out := make([]Order, 0, len(m.completed)-start)
	for _, o := range m.completed[start:] {
		out = append(out, *o)
	}
	return out
}

// Stats returns the running execution counters.
func (m *Manager) Stats() ExecutionStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := ExecutionStats{
		Total:      m.total,
		Successful: m.successful,
		Failed:     m.failed,
		Rejected:   m.rejected,
		Active:     len(m.active),
		Completed:  len(m.completed),
	}
	if m.total > 0 {
		stats.SuccessRate = float64(m.successful) / float64(m.total) * 100
	}
	return stats
}

func (m *Manager) appendCompletedLocked(o *Order) {
	m.completed = append(m.completed, o)
	if len(m.completed) > m.completedLimit {
		m.completed = m.completed[len(m.completed)-m.completedLimit:]
	}
}

func (m *Manager) persist(ctx context.Context, o *Order) {
	if m.database == nil {
		return
	}
	row := db.Order{
		ID:         o.ID,
		ContractID: o.ContractID,
		Symbol:     o.Symbol,
		Direction:  string(o.Direction),
		Stake:      o.Stake,
		Duration:   o.Duration,
		EntryPrice: o.EntryPrice,
		EntryTime:  o.EntryTime,
		ExitPrice:  o.ExitPrice,
		PnL:        o.PnL,
		Payout:     o.Payout,
		Status:     string(o.Status),
		Strategy:   o.Strategy,
	}
	if !o.ExitTime.IsZero() {
		t := o.ExitTime
		row.ExitTime = &t
	}
	if err := m.database.UpsertOrder(ctx, row); err != nil {
		log.Printf("lifecycle: persist order %s: %v", o.ID, err)
	}
}

func fromRow(row db.Order) *Order {
	o := &Order{
		ID:         row.ID,
		ContractID: row.ContractID,
		Symbol:     row.Symbol,
		Direction:  signal.Direction(row.Direction),
		Stake:      row.Stake,
		Duration:   row.Duration,
		EntryPrice: row.EntryPrice,
		EntryTime:  row.EntryTime,
		ExitPrice:  row.ExitPrice,
		PnL:        row.PnL,
		Payout:     row.Payout,
		Status:     Status(row.Status),
		Strategy:   row.Strategy,
	}
	if row.ExitTime != nil {
		o.ExitTime = *row.ExitTime
	}
	return o
}
