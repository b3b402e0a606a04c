package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/clock"
	"github.com/lumapay/routingd/internal/quote"
	"github.com/lumapay/routingd/internal/storage/kvstore"
)

// OTCReserver obtains a desk-side reservation for quotes with an OTC
// leg. Implemented by the desk integration; absent in deployments that
// only route on-chain.
type OTCReserver interface {
	Reserve(ctx context.Context, q *ProvisionalQuote, clientID string) (*OTCReservationMeta, error)
}

// Quotes is the provisional/reserved quote registry.
type Quotes struct {
	store kvstore.Store
	clk   clock.Clock
	log   *zap.Logger
	otc   OTCReserver

	provisionalTTL time.Duration
	reservedTTL    time.Duration
}

func NewQuotes(store kvstore.Store, clk clock.Clock, log *zap.Logger, otc OTCReserver) *Quotes {
	return &Quotes{
		store:          store,
		clk:            clk,
		log:            log.Named("quotes"),
		otc:            otc,
		provisionalTTL: DefaultProvisionalTTL,
		reservedTTL:    DefaultReservedTTL,
	}
}

// StoreProvisional persists a scored route as an addressable quote with
// a 15s lifetime.
func (q *Quotes) StoreProvisional(ctx context.Context, route, fallback *quote.Route, amountIn, gross, net float64, feeBps int, meta ScoringMeta, qtype QuoteType) (*ProvisionalQuote, error) {
	now := q.clk.NowMs()
	prov := &ProvisionalQuote{
		QuoteID:       uuid.NewString(),
		Route:         route,
		FallbackRoute: fallback,
		AmountIn:      amountIn,
		AmountOut:     gross,
		NetAmountOut:  net,
		FeeBps:        feeBps,
		ExpiryTs:      now + q.provisionalTTL.Milliseconds(),
		CreatedTs:     now,
		Type:          qtype,
		ScoringMeta:   meta,
	}
	if err := q.write(ctx, provisionalKeyPrefix+prov.QuoteID, prov, q.provisionalTTL); err != nil {
		return nil, errors.Wrap(err, "storing provisional quote")
	}
	return prov, nil
}

// GetProvisional returns the provisional quote, treating expired
// records as absent.
func (q *Quotes) GetProvisional(ctx context.Context, quoteID string) (*ProvisionalQuote, error) {
	raw, err := q.store.Get(ctx, provisionalKeyPrefix+quoteID)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrQuoteNotFound
		}
		return nil, err
	}
	var prov ProvisionalQuote
	if err := json.Unmarshal([]byte(raw), &prov); err != nil {
		return nil, errors.Wrap(err, "parsing provisional quote")
	}
	if q.clk.NowMs() >= prov.ExpiryTs {
		return nil, ErrQuoteNotFound
	}
	return &prov, nil
}

// Reserve promotes a provisional quote into a reservation. The reserved
// key is claimed with a set-if-absent write, so of two racing clients
// only the first wins; the loser sees not-found once the provisional is
// gone. The provisional key is deleted after the reserved key is
// written; consumers prefer the reserved key during the brief overlap.
func (q *Quotes) Reserve(ctx context.Context, quoteID, clientID string) (*ReservedQuote, error) {
	prov, err := q.GetProvisional(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if prov.Route == nil {
		return nil, ErrNoRoute
	}

	now := q.clk.NowMs()
	reserved := &ReservedQuote{
		ProvisionalQuote: *prov,
		ReservationID:    uuid.NewString(),
		ReservedByClient: clientID,
		ReservedUntilTs:  now + q.reservedTTL.Milliseconds(),
	}

	data, err := json.Marshal(reserved)
	if err != nil {
		return nil, err
	}
	won, err := q.store.SetNX(ctx, reservedKeyPrefix+quoteID, string(data), q.reservedTTL)
	if err != nil {
		return nil, errors.Wrap(err, "claiming reservation")
	}
	if !won {
		// A sibling reservation already exists for this quote.
		return nil, ErrQuoteNotFound
	}

	if q.otc != nil && (prov.Type == QuoteOTC || prov.Type == QuoteOTCDEX) {
		meta, err := q.otc.Reserve(ctx, prov, clientID)
		if err != nil {
			// The reservation stands on our side; the desk leg is
			// retried at execution time.
			q.log.Warn("otc reservation failed",
				zap.String("quoteId", quoteID), zap.Error(err))
		} else if meta != nil {
			reserved.OTCReservation = meta
			if err := q.write(ctx, reservedKeyPrefix+quoteID, reserved, q.reservedTTL); err != nil {
				q.log.Warn("persisting otc reservation meta failed",
					zap.String("quoteId", quoteID), zap.Error(err))
			}
		}
	}

	if err := q.store.Del(ctx, provisionalKeyPrefix+quoteID); err != nil {
		q.log.Warn("deleting provisional after reserve failed",
			zap.String("quoteId", quoteID), zap.Error(err))
	}
	return reserved, nil
}

// GetReserved returns the reservation for quoteID, treating expired
// records as absent.
func (q *Quotes) GetReserved(ctx context.Context, quoteID string) (*ReservedQuote, error) {
	raw, err := q.store.Get(ctx, reservedKeyPrefix+quoteID)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrQuoteNotFound
		}
		return nil, err
	}
	var reserved ReservedQuote
	if err := json.Unmarshal([]byte(raw), &reserved); err != nil {
		return nil, errors.Wrap(err, "parsing reserved quote")
	}
	if q.clk.NowMs() >= reserved.ReservedUntilTs {
		return nil, ErrQuoteNotFound
	}
	return &reserved, nil
}

func (q *Quotes) write(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return q.store.Set(ctx, key, string(data), ttl)
}
