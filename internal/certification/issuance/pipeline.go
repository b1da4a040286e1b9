package issuance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agrocert/certification-backend/internal/certification"
	"agrocert/certification-backend/pkg/workflows"
)

// DefaultSymbol is the asset class symbol used when none is configured
const DefaultSymbol = "CERT"

// AttestationPublisher commits a payload to the attestation log
type AttestationPublisher interface {
	Publish(ctx context.Context, payload certification.Payload) (*certification.Attestation, error)
}

// AssetClassFactory registers a capped certificate class
type AssetClassFactory interface {
	CreateClass(ctx context.Context, name, symbol string) (*certification.AssetClass, error)
}

// UnitMinter mints the unit that carries the attestation reference
type UnitMinter interface {
	Mint(ctx context.Context, classID string, locator certification.AttestationLocator) (*certification.Unit, error)
}

// UnitLookup reads a minted unit back from public records
type UnitLookup interface {
	Verify(ctx context.Context, assetID string, serial int64) (*certification.VerificationRecord, error)
}

// Config holds pipeline tuning
type Config struct {
	// Symbol is the asset class symbol
	Symbol string
	// StepTimeout bounds each ledger step. Zero leaves only the caller's deadline.
	StepTimeout time.Duration
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithObserver registers an observer for state transitions
func WithObserver(o certification.Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

// WithUnitLookup enables mint reconciliation on Resume
func WithUnitLookup(l UnitLookup) Option {
	return func(p *Pipeline) { p.lookup = l }
}

// WithClock overrides the time source used for events
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline runs publish, create class and mint in order.
// It holds no per-issuance state and is safe for concurrent use.
type Pipeline struct {
	publisher   AttestationPublisher
	factory     AssetClassFactory
	minter      UnitMinter
	lookup      UnitLookup
	states      *workflows.StateMachine
	symbol      string
	stepTimeout time.Duration
	observers   []certification.Observer
	logger      *zap.Logger
	now         func() time.Time
}

// NewPipeline wires the three issuance components together
func NewPipeline(publisher AttestationPublisher, factory AssetClassFactory, minter UnitMinter, cfg Config, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	symbol := cfg.Symbol
	if symbol == "" {
		symbol = DefaultSymbol
	}
	p := &Pipeline{
		publisher:   publisher,
		factory:     factory,
		minter:      minter,
		states:      newIssuanceStateMachine(),
		symbol:      symbol,
		stepTimeout: cfg.StepTimeout,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func newIssuanceStateMachine() *workflows.StateMachine {
	return workflows.NewStateMachine(map[string][]string{
		string(certification.StateInit):         {string(certification.StatePublished), string(certification.StateFailed)},
		string(certification.StatePublished):    {string(certification.StateClassCreated), string(certification.StateFailed)},
		string(certification.StateClassCreated): {string(certification.StateMinted), string(certification.StateFailed)},
		string(certification.StateMinted):       {string(certification.StateDone), string(certification.StateFailed)},
		string(certification.StateDone):         {},
		string(certification.StateFailed):       {},
	})
}

// Issue runs a fresh issuance for payload. Failures before the attestation
// commits are returned as classified errors; later failures are returned as
// *certification.PartialIssuanceError carrying the checkpoint.
func (p *Pipeline) Issue(ctx context.Context, payload certification.Payload) (*certification.IssuanceResult, error) {
	r := p.begin(certification.Checkpoint{})

	productName := payload.ProductName()
	if productName == "" {
		return nil, r.fail(certification.StagePublish,
			certification.NewError(certification.KindValidation, "issue", "productName is required", nil))
	}
	if err := ctx.Err(); err != nil {
		return nil, r.fail(certification.StagePublish, err)
	}

	attestation, err := p.publish(ctx, payload)
	if err != nil {
		return nil, r.fail(certification.StagePublish, err)
	}
	r.checkpoint.Locator = attestation.Locator
	r.checkpoint.ContentID = attestation.ContentID
	if err := r.advance(certification.StatePublished, certification.StagePublish); err != nil {
		return nil, r.fail(certification.StagePublish, err)
	}

	return r.continueFrom(ctx, productName)
}

// Resume finishes an issuance from a checkpoint returned in a PartialIssuanceError.
// The attestation is never republished. With a class id present and a unit
// lookup configured, serial 1 is read back first: a unit already referencing
// the checkpoint's attestation completes the issuance without a second mint.
func (p *Pipeline) Resume(ctx context.Context, checkpoint certification.Checkpoint, productName string) (*certification.IssuanceResult, error) {
	const op = "resume"

	if err := checkpoint.Locator.Validate(); err != nil {
		// nothing is known to be committed, so the failure is not partial
		return nil, p.begin(certification.Checkpoint{}).fail(certification.StagePublish,
			certification.NewError(certification.KindValidation, op, "checkpoint has no valid attestation locator", err))
	}

	r := p.begin(checkpoint)
	if checkpoint.ClassID == "" && productName == "" {
		return nil, r.fail(certification.StageCreateClass,
			certification.NewError(certification.KindValidation, op, "productName is required to create the asset class", nil))
	}

	if err := r.advance(certification.StatePublished, certification.StagePublish); err != nil {
		return nil, r.fail(certification.StagePublish, err)
	}
	if checkpoint.ClassID == "" {
		return r.continueFrom(ctx, productName)
	}
	if err := r.advance(certification.StateClassCreated, certification.StageCreateClass); err != nil {
		return nil, r.fail(certification.StageCreateClass, err)
	}

	if p.lookup != nil {
		record, err := p.lookup.Verify(ctx, checkpoint.ClassID, 1)
		switch {
		case err == nil && record.Locator.Equal(checkpoint.Locator):
			p.logger.Info("Unit already minted, completing issuance",
				zap.String("issuance_id", r.id),
				zap.String("class_id", checkpoint.ClassID))
			return r.complete(record.Serial, record.AttestationReference)
		case err == nil:
			return nil, r.fail(certification.StageMint,
				certification.NewError(certification.KindCapacityExceeded, op,
					"asset class already holds a unit referencing attestation "+record.Locator.String(), nil))
		case certification.IsKind(err, certification.KindNotFound):
		default:
			return nil, r.fail(certification.StageMint, err)
		}
	}

	return r.continueFrom(ctx, productName)
}

func (p *Pipeline) publish(ctx context.Context, payload certification.Payload) (*certification.Attestation, error) {
	ctx, cancel := p.stepContext(ctx)
	defer cancel()
	return p.publisher.Publish(ctx, payload)
}

func (p *Pipeline) createClass(ctx context.Context, name string) (*certification.AssetClass, error) {
	ctx, cancel := p.stepContext(ctx)
	defer cancel()
	return p.factory.CreateClass(ctx, name, p.symbol)
}

func (p *Pipeline) mint(ctx context.Context, classID string, locator certification.AttestationLocator) (*certification.Unit, error) {
	ctx, cancel := p.stepContext(ctx)
	defer cancel()
	return p.minter.Mint(ctx, classID, locator)
}

func (p *Pipeline) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.stepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.stepTimeout)
}

func (p *Pipeline) begin(checkpoint certification.Checkpoint) *run {
	return &run{
		p:          p,
		id:         uuid.New().String(),
		state:      certification.StateInit,
		started:    p.now(),
		checkpoint: checkpoint,
	}
}

// run is the state of one issuance. It never outlives the call that created it.
type run struct {
	p          *Pipeline
	id         string
	state      certification.State
	started    time.Time
	checkpoint certification.Checkpoint
}

func (r *run) continueFrom(ctx context.Context, productName string) (*certification.IssuanceResult, error) {
	if r.checkpoint.ClassID == "" {
		if err := ctx.Err(); err != nil {
			return nil, r.fail(certification.StageCreateClass, err)
		}
		class, err := r.p.createClass(ctx, ClassName(productName))
		if err != nil {
			return nil, r.fail(certification.StageCreateClass, err)
		}
		r.checkpoint.ClassID = class.ID
		if err := r.advance(certification.StateClassCreated, certification.StageCreateClass); err != nil {
			return nil, r.fail(certification.StageCreateClass, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, r.fail(certification.StageMint, err)
	}
	unit, err := r.p.mint(ctx, r.checkpoint.ClassID, r.checkpoint.Locator)
	if err != nil {
		return nil, r.fail(certification.StageMint, err)
	}
	return r.complete(unit.Serial, unit.Reference)
}

func (r *run) complete(serial int64, reference string) (*certification.IssuanceResult, error) {
	if err := r.advance(certification.StateMinted, certification.StageMint, withSerial(serial)); err != nil {
		return nil, r.fail(certification.StageMint, err)
	}
	result := &certification.IssuanceResult{
		IssuanceID:           r.id,
		AttestationLocator:   r.checkpoint.Locator,
		AttestationReference: reference,
		ContentID:            r.checkpoint.ContentID,
		AssetClassID:         r.checkpoint.ClassID,
		UnitSerial:           serial,
	}
	if err := r.advance(certification.StateDone, certification.StageAssemble, withSerial(serial)); err != nil {
		return nil, r.fail(certification.StageAssemble, err)
	}

	r.p.logger.Info("Certificate issued",
		zap.String("issuance_id", r.id),
		zap.String("locator", result.AttestationLocator.String()),
		zap.String("class_id", result.AssetClassID),
		zap.Int64("serial", result.UnitSerial))
	return result, nil
}

type eventOption func(*certification.Event)

func withSerial(serial int64) eventOption {
	return func(e *certification.Event) { e.Serial = serial }
}

func (r *run) advance(to certification.State, stage certification.Stage, opts ...eventOption) error {
	if err := r.p.states.Transition(string(r.state), string(to)); err != nil {
		return err
	}
	event := r.event(to, stage)
	for _, opt := range opts {
		opt(&event)
	}
	r.state = to
	r.emit(event)
	return nil
}

// fail moves the run to FAILED. Once the attestation is committed the cause
// is wrapped in a PartialIssuanceError so the checkpoint is never lost.
func (r *run) fail(stage certification.Stage, cause error) error {
	if r.state != certification.StateFailed && r.p.states.CanTransition(string(r.state), string(certification.StateFailed)) {
		event := r.event(certification.StateFailed, stage)
		event.ErrorKind = certification.KindOf(cause)
		if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
			event.ErrorKind = certification.KindTransient
		}
		event.Error = cause.Error()
		r.state = certification.StateFailed
		r.emit(event)
	}

	fields := []zap.Field{
		zap.String("issuance_id", r.id),
		zap.String("stage", string(stage)),
		zap.Error(cause),
	}
	if r.checkpoint.Locator.IsZero() {
		r.p.logger.Warn("Issuance aborted", fields...)
		return cause
	}
	r.p.logger.Error("Issuance stopped after partial commit",
		append(fields,
			zap.String("locator", r.checkpoint.Locator.String()),
			zap.String("class_id", r.checkpoint.ClassID))...)
	return &certification.PartialIssuanceError{
		IssuanceID: r.id,
		Stage:      stage,
		Checkpoint: r.checkpoint,
		Cause:      cause,
	}
}

func (r *run) event(to certification.State, stage certification.Stage) certification.Event {
	now := r.p.now()
	return certification.Event{
		IssuanceID: r.id,
		From:       r.state,
		To:         to,
		Stage:      stage,
		Checkpoint: r.checkpoint,
		Elapsed:    now.Sub(r.started).Seconds(),
		At:         now,
	}
}

func (r *run) emit(event certification.Event) {
	for _, o := range r.p.observers {
		o.OnEvent(event)
	}
}
