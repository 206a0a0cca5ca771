package rafflevrf

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	raffletypes "github.com/Black-And-White-Club/raffle-bot/app/modules/raffle/domain/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing"
	"go.dedis.ch/kyber/v3/sign/bls"
	"go.dedis.ch/kyber/v3/xof/blake2xb"
)

var (
	ErrInvalidSubscription = errors.New("invalid subscription")
	ErrInvalidConsumer     = errors.New("invalid consumer")
	ErrInvalidNumWords     = errors.New("invalid number of words")
	ErrInsufficientBalance = errors.New("insufficient subscription balance")
	ErrUnknownRequest      = errors.New("unknown randomness request")
	ErrInvalidProof        = errors.New("invalid randomness proof")
	ErrClosed              = errors.New("coordinator closed")
)

// Consumer receives fulfilled random words.
type Consumer interface {
	FulfillRandomWords(ctx context.Context, requestID raffletypes.RequestID, randomWords []*big.Int) error
}

// Config tunes the coordinator.
type Config struct {
	// FulfillmentDelay is how long after a request the words are delivered.
	// A negative delay disables automatic delivery; call FulfillRandomWords.
	FulfillmentDelay time.Duration
	// FulfillmentFee is charged to the subscription on every delivery.
	FulfillmentFee *big.Int
	// MaxNumWords bounds a single request. Zero means 500.
	MaxNumWords uint32
	// ProofCacheSize is how many delivered proofs Proof can return. Zero means 256.
	ProofCacheSize int
	// Seed makes the signing key deterministic. Empty draws a random key.
	Seed []byte
}

// Subscription is a funded account that consumers bill requests to.
type Subscription struct {
	ID        uint64
	Owner     common.Address
	Balance   *big.Int
	Consumers []common.Address
}

// Proof is the evidence for one delivery. Anyone holding the coordinator's
// public key can check it with VerifyProof.
type Proof struct {
	RequestID raffletypes.RequestID
	PreSeed   []byte
	Signature []byte
	Words     []*big.Int
}

type subscription struct {
	owner     common.Address
	balance   *big.Int
	consumers map[common.Address]Consumer
	order     []common.Address
}

type request struct {
	id       raffletypes.RequestID
	subID    uint64
	consumer common.Address
	numWords uint32
	preSeed  []byte
	timer    *time.Timer
}

// Coordinator is an in-process verifiable randomness oracle. Each request is
// answered with words derived from a BLS signature over a seed the requester
// cannot predict before the request id is assigned.
type Coordinator struct {
	mu            sync.Mutex
	subscriptions map[uint64]*subscription
	pending       map[raffletypes.RequestID]*request
	nonces        map[common.Address]uint64
	nextSubID     uint64
	lastRequestID raffletypes.RequestID
	closed        bool
	now           func() time.Time

	suite   pairing.Suite
	private kyber.Scalar
	public  kyber.Point
	proofs  *lru.Cache

	delay       time.Duration
	fee         *big.Int
	maxNumWords uint32
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCoordinator creates a coordinator with a fresh BLS key pair on bn256.
func NewCoordinator(cfg Config, logger *slog.Logger) (*Coordinator, error) {
	suite := pairing.NewSuiteBn256()

	stream := suite.RandomStream()
	if len(cfg.Seed) > 0 {
		stream = blake2xb.New(cfg.Seed)
	}
	private, public := bls.NewKeyPair(suite, stream)

	cacheSize := cfg.ProofCacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}
	proofs, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create proof cache: %w", err)
	}

	maxWords := cfg.MaxNumWords
	if maxWords == 0 {
		maxWords = 500
	}
	fee := new(big.Int)
	if cfg.FulfillmentFee != nil {
		fee.Set(cfg.FulfillmentFee)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		subscriptions: make(map[uint64]*subscription),
		pending:       make(map[raffletypes.RequestID]*request),
		nonces:        make(map[common.Address]uint64),
		suite:         suite,
		private:       private,
		public:        public,
		proofs:        proofs,
		delay:         cfg.FulfillmentDelay,
		fee:           fee,
		maxNumWords:   maxWords,
		logger:        logger,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// CreateSubscription opens an empty subscription owned by owner.
func (c *Coordinator) CreateSubscription(owner common.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSubID++
	c.subscriptions[c.nextSubID] = &subscription{
		owner:     owner,
		balance:   new(big.Int),
		consumers: make(map[common.Address]Consumer),
	}
	c.logger.Info("Subscription created",
		slog.Uint64("subscription_id", c.nextSubID),
		slog.String("owner", owner.Hex()),
	)
	return c.nextSubID
}

// FundSubscription adds amount to the subscription balance.
func (c *Coordinator) FundSubscription(subID uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("funding amount must be positive")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subscriptions[subID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	sub.balance.Add(sub.balance, amount)
	c.logger.Info("Subscription funded",
		slog.Uint64("subscription_id", subID),
		slog.String("amount", amount.String()),
		slog.String("balance", sub.balance.String()),
	)
	return nil
}

// AddConsumer allows address to bill requests to the subscription. Words for
// its requests are delivered to target.
func (c *Coordinator) AddConsumer(subID uint64, address common.Address, target Consumer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subscriptions[subID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	if _, exists := sub.consumers[address]; !exists {
		sub.order = append(sub.order, address)
	}
	sub.consumers[address] = target
	return nil
}

// GetSubscription returns a copy of the subscription.
func (c *Coordinator) GetSubscription(subID uint64) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subscriptions[subID]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	return Subscription{
		ID:        subID,
		Owner:     sub.owner,
		Balance:   new(big.Int).Set(sub.balance),
		Consumers: append([]common.Address(nil), sub.order...),
	}, nil
}

// RequestRandomWords registers a request and returns its id. Words are never
// delivered before this call returns.
func (c *Coordinator) RequestRandomWords(
	ctx context.Context,
	consumer common.Address,
	keyHash common.Hash,
	subID uint64,
	minConfirmations uint16,
	callbackGasLimit uint32,
	numWords uint32,
) (raffletypes.RequestID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}
	sub, ok := c.subscriptions[subID]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	if _, ok := sub.consumers[consumer]; !ok {
		return 0, fmt.Errorf("%w: %s on subscription %d", ErrInvalidConsumer, consumer.Hex(), subID)
	}
	if numWords == 0 || numWords > c.maxNumWords {
		return 0, fmt.Errorf("%w: %d (max %d)", ErrInvalidNumWords, numWords, c.maxNumWords)
	}

	// Ids follow the wall clock and keep increasing across restarts.
	id := raffletypes.RequestID(c.now().UnixNano())
	if id <= c.lastRequestID {
		id = c.lastRequestID + 1
	}
	c.lastRequestID = id
	c.nonces[consumer]++
	req := &request{
		id:       id,
		subID:    subID,
		consumer: consumer,
		numWords: numWords,
		preSeed:  preSeed(keyHash, subID, id, c.nonces[consumer]),
	}
	c.pending[req.id] = req

	if c.delay >= 0 {
		req.timer = time.AfterFunc(c.delay, func() {
			if _, err := c.FulfillRandomWords(c.ctx, id); err != nil {
				c.logger.Warn("Automatic fulfillment failed",
					slog.Uint64("request_id", uint64(id)),
					slog.Any("error", err),
				)
			}
		})
	}

	c.logger.InfoContext(ctx, "Random words requested",
		slog.Uint64("request_id", uint64(req.id)),
		slog.Uint64("subscription_id", subID),
		slog.String("consumer", consumer.Hex()),
		slog.String("key_hash", keyHash.Hex()),
		slog.Uint64("min_confirmations", uint64(minConfirmations)),
		slog.Uint64("callback_gas_limit", uint64(callbackGasLimit)),
		slog.Uint64("num_words", uint64(numWords)),
	)
	return req.id, nil
}

// FulfillRandomWords proves and delivers a pending request. The request
// stays pending if the subscription cannot pay the fee. A consumer error is
// returned but the request counts as fulfilled.
func (c *Coordinator) FulfillRandomWords(ctx context.Context, requestID raffletypes.RequestID) ([]*big.Int, error) {
	c.mu.Lock()
	req, ok := c.pending[requestID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrUnknownRequest, requestID)
	}
	sub := c.subscriptions[req.subID]
	if sub.balance.Cmp(c.fee) < 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: subscription %d has %s, fee is %s", ErrInsufficientBalance, req.subID, sub.balance, c.fee)
	}

	sig, err := bls.Sign(c.suite, c.private, req.preSeed)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to sign seed: %w", err)
	}
	proof := Proof{
		RequestID: requestID,
		PreSeed:   req.preSeed,
		Signature: sig,
		Words:     deriveWords(sig, req.numWords),
	}
	if err := c.verify(proof); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	sub.balance.Sub(sub.balance, c.fee)
	delete(c.pending, requestID)
	if req.timer != nil {
		req.timer.Stop()
	}
	c.proofs.Add(requestID, proof)
	target := sub.consumers[req.consumer]
	c.mu.Unlock()

	words := copyWords(proof.Words)
	c.logger.InfoContext(ctx, "Random words fulfilled",
		slog.Uint64("request_id", uint64(requestID)),
		slog.Uint64("subscription_id", req.subID),
	)

	if target != nil {
		if err := target.FulfillRandomWords(ctx, requestID, copyWords(words)); err != nil {
			return words, fmt.Errorf("consumer rejected request %d: %w", requestID, err)
		}
	}
	return words, nil
}

// Proof returns the proof of a recently fulfilled request.
func (c *Coordinator) Proof(requestID raffletypes.RequestID) (Proof, bool) {
	v, ok := c.proofs.Get(requestID)
	if !ok {
		return Proof{}, false
	}
	return v.(Proof), true
}

// PublicKey returns the marshalled BLS verification key.
func (c *Coordinator) PublicKey() ([]byte, error) {
	return c.public.MarshalBinary()
}

// VerifyProof checks the signature and the derived words.
func (c *Coordinator) VerifyProof(proof Proof) error {
	return c.verify(proof)
}

// PendingRequests lists requests not yet fulfilled.
func (c *Coordinator) PendingRequests() []raffletypes.RequestID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]raffletypes.RequestID, 0, len(c.pending))
	for id := range c.pending {
		out = append(out, id)
	}
	return out
}

// Close stops automatic deliveries. Pending requests are dropped.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	for _, req := range c.pending {
		if req.timer != nil {
			req.timer.Stop()
		}
	}
	return nil
}

func (c *Coordinator) verify(proof Proof) error {
	if err := bls.Verify(c.suite, c.public, proof.PreSeed, proof.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	expected := deriveWords(proof.Signature, uint32(len(proof.Words)))
	for i := range expected {
		if expected[i].Cmp(proof.Words[i]) != 0 {
			return fmt.Errorf("%w: word %d does not match signature", ErrInvalidProof, i)
		}
	}
	return nil
}

// preSeed = keccak256(keyHash || subID || requestID || nonce), integers big-endian.
func preSeed(keyHash common.Hash, subID uint64, requestID raffletypes.RequestID, nonce uint64) []byte {
	buf := make([]byte, 0, common.HashLength+24)
	buf = append(buf, keyHash.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, subID)
	buf = binary.BigEndian.AppendUint64(buf, uint64(requestID))
	buf = binary.BigEndian.AppendUint64(buf, nonce)
	return crypto.Keccak256(buf)
}

// deriveWords expands a signature into n 256-bit words: word i = keccak256(sig || i).
func deriveWords(sig []byte, n uint32) []*big.Int {
	words := make([]*big.Int, n)
	for i := uint32(0); i < n; i++ {
		idx := binary.BigEndian.AppendUint32(nil, i)
		words[i] = new(big.Int).SetBytes(crypto.Keccak256(sig, idx))
	}
	return words
}

func copyWords(words []*big.Int) []*big.Int {
	out := make([]*big.Int, len(words))
	for i, w := range words {
		out[i] = new(big.Int).Set(w)
	}
	return out
}
