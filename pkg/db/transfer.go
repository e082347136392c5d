package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ibc-tracker/pkg/db/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ActiveWindowSeconds is the width of the rolling activity window.
const ActiveWindowSeconds int64 = 24 * 60 * 60

var tracer = otel.Tracer("github.com/scalarorg/ibc-tracker/pkg/db")

// InsertManyResult is handed to the InsertHook once a bulk insert finishes.
type InsertManyResult struct {
	Requested int
	Inserted  int
	// Failed maps the index of a rejected record to its validation or write error.
	Failed map[int]error
	Err    error
}

type InsertHook func(result InsertManyResult)

var ErrRejectedRecords = errors.New("transfer records rejected")

type TransferRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewTransferRepository(database *mongo.Database) *TransferRepository {
	return &TransferRepository{
		coll: database.Collection(models.TransferRecordCollection),
		now:  time.Now,
	}
}

func (r *TransferRepository) Collection() *mongo.Collection {
	return r.coll
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "TransferRepository."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func windowStart(now int64) int64 {
	return now - ActiveWindowSeconds
}

func activeWindowMatch(now int64) bson.M {
	return bson.M{
		"tx_time": bson.M{"$gte": windowStart(now)},
		"status":  bson.M{"$in": models.ActiveStatuses},
	}
}

// Upsert finds the record by record_id and merges the non-empty fields of rec
// into it, inserting it when absent. The document as it was before the update
// is returned; nil means the record was inserted.
func (r *TransferRepository) Upsert(ctx context.Context, rec *models.TransferRecord) (prev *models.TransferRecord, err error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	ctx, span := startSpan(ctx, "Upsert", attribute.String("record_id", rec.RecordID))
	defer func() { endSpan(span, err) }()

	update := upsertDocument(rec, r.now().Unix())
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	var before models.TransferRecord
	err = r.coll.FindOneAndUpdate(ctx, bson.M{"record_id": rec.RecordID}, update, opts).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		log.Debug().Str("record_id", rec.RecordID).Msg("[TransferRepository] [Upsert] inserted new record")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("upsert transfer record %s: %w", rec.RecordID, err)
	}
	return &before, nil
}

// upsertDocument builds a merge update: empty fields of rec leave the stored
// value untouched, bookkeeping defaults are computed from now on every call.
func upsertDocument(rec *models.TransferRecord, now int64) bson.M {
	set := bson.M{"status": rec.Status}
	setString := func(key, value string) {
		if value != "" {
			set[key] = value
		}
	}
	setString("sc_addr", rec.SourceAddr)
	setString("dc_addr", rec.DestAddr)
	setString("sc_port", rec.SourcePort)
	setString("sc_channel", rec.SourceChannel)
	setString("sc_chain_id", rec.SourceChainID)
	setString("dc_port", rec.DestPort)
	setString("dc_channel", rec.DestChannel)
	setString("dc_chain_id", rec.DestChainID)
	setString("sequence", rec.Sequence)
	setString("log.sc_log", rec.Log.SourceLog)
	setString("log.dc_log", rec.Log.DestLog)
	setString("denoms.sc_denom", rec.Denoms.SourceDenom)
	setString("denoms.dc_denom", rec.Denoms.DestDenom)
	setString("base_denom", rec.BaseDenom)
	if rec.SourceTxInfo != nil {
		set["sc_tx_info"] = rec.SourceTxInfo
	}
	if rec.DestTxInfo != nil {
		set["dc_tx_info"] = rec.DestTxInfo
	}
	if rec.RefundedTxInfo != nil {
		set["refunded_tx_info"] = rec.RefundedTxInfo
	}

	set["update_at"] = now
	if rec.UpdatedAt > 0 {
		set["update_at"] = rec.UpdatedAt
	}

	setOnInsert := bson.M{"create_at": now}
	if rec.CreatedAt > 0 {
		setOnInsert["create_at"] = rec.CreatedAt
	}
	if rec.TxTime > 0 {
		set["tx_time"] = rec.TxTime
	} else {
		setOnInsert["tx_time"] = now
	}
	return bson.M{"$set": set, "$setOnInsert": setOnInsert}
}

// InsertMany inserts the records unordered, so one rejected document does not
// block its siblings. Records that fail validation or are refused by the store
// are reported by their index in recs and the returned error wraps
// ErrRejectedRecords. Any other error means nothing was written. hook, when
// non-nil, is called exactly once.
func (r *TransferRepository) InsertMany(ctx context.Context, recs []*models.TransferRecord, hook InsertHook) (err error) {
	ctx, span := startSpan(ctx, "InsertMany", attribute.Int("records", len(recs)))
	defer func() { endSpan(span, err) }()

	result := InsertManyResult{Requested: len(recs), Failed: make(map[int]error)}
	defer func() {
		result.Err = err
		if hook != nil {
			hook(result)
		}
	}()
	if len(recs) == 0 {
		return nil
	}

	now := r.now().Unix()
	docs := make([]interface{}, 0, len(recs))
	positions := make([]int, 0, len(recs))
	for idx, rec := range recs {
		if verr := rec.Validate(); verr != nil {
			result.Failed[idx] = verr
			continue
		}
		doc := *rec
		if doc.CreatedAt == 0 {
			doc.CreatedAt = now
		}
		if doc.UpdatedAt == 0 {
			doc.UpdatedAt = now
		}
		if doc.TxTime == 0 {
			doc.TxTime = now
		}
		docs = append(docs, doc)
		positions = append(positions, idx)
	}

	if len(docs) > 0 {
		res, ierr := r.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
		if res != nil {
			result.Inserted = len(res.InsertedIDs)
		}
		var bulkErr mongo.BulkWriteException
		switch {
		case errors.As(ierr, &bulkErr) && len(bulkErr.WriteErrors) > 0:
			for _, we := range bulkErr.WriteErrors {
				result.Failed[positions[we.Index]] = we
			}
			result.Inserted = len(docs) - len(bulkErr.WriteErrors)
		case ierr != nil:
			return fmt.Errorf("insert %d transfer records: %w", len(docs), ierr)
		}
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%w: %d of %d", ErrRejectedRecords, len(result.Failed), len(recs))
	}
	return nil
}

func (r *TransferRepository) count(ctx context.Context, name string, filter bson.M) (n int64, err error) {
	ctx, span := startSpan(ctx, name)
	defer func() { endSpan(span, err) }()
	n, err = r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

// CountAll counts records in any active status.
func (r *TransferRepository) CountAll(ctx context.Context) (int64, error) {
	return r.count(ctx, "CountAll", bson.M{"status": bson.M{"$in": models.ActiveStatuses}})
}

// CountActive counts active records with tx_time inside the 24h window ending at now.
func (r *TransferRepository) CountActive(ctx context.Context, now int64) (int64, error) {
	return r.count(ctx, "CountActive", activeWindowMatch(now))
}

func (r *TransferRepository) CountSuccess(ctx context.Context) (int64, error) {
	return r.count(ctx, "CountSuccess", bson.M{"status": models.StatusSuccess})
}

// CountFailed counts failed and refunded records.
func (r *TransferRepository) CountFailed(ctx context.Context) (int64, error) {
	return r.count(ctx, "CountFailed", bson.M{"status": bson.M{"$in": models.FailedStatuses}})
}

func (r *TransferRepository) CountByStatus(ctx context.Context, status models.Status) (int64, error) {
	return r.count(ctx, "CountByStatus", bson.M{"status": status})
}

func (r *TransferRepository) aggregate(ctx context.Context, name string, pipeline mongo.Pipeline, out interface{}) (err error) {
	ctx, span := startSpan(ctx, name)
	defer func() { endSpan(span, err) }()
	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err = cursor.All(ctx, out); err != nil {
		return fmt.Errorf("%s: decode: %w", name, err)
	}
	return nil
}

// FindActiveChainPairs24hr returns the distinct (source, destination) chain
// pairs of active records inside the 24h window.
func (r *TransferRepository) FindActiveChainPairs24hr(ctx context.Context, now int64) ([]models.ChainPair, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: activeWindowMatch(now)}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"sc_chain_id": "$sc_chain_id", "dc_chain_id": "$dc_chain_id"},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":         0,
			"sc_chain_id": "$_id.sc_chain_id",
			"dc_chain_id": "$_id.dc_chain_id",
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "sc_chain_id", Value: 1}, {Key: "dc_chain_id", Value: 1}}}},
	}
	pairs := []models.ChainPair{}
	if err := r.aggregate(ctx, "FindActiveChainPairs24hr", pipeline, &pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

func (r *TransferRepository) FindActiveSourceChannels24hr(ctx context.Context, now int64, chainIDs []string) ([]models.ChannelChain, error) {
	return r.findActiveChannels24hr(ctx, "FindActiveSourceChannels24hr", now, chainIDs, "sc_channel", "sc_chain_id")
}

func (r *TransferRepository) FindActiveDestChannels24hr(ctx context.Context, now int64, chainIDs []string) ([]models.ChannelChain, error) {
	return r.findActiveChannels24hr(ctx, "FindActiveDestChannels24hr", now, chainIDs, "dc_channel", "dc_chain_id")
}

func (r *TransferRepository) findActiveChannels24hr(ctx context.Context, name string, now int64, chainIDs []string, channelField, chainField string) ([]models.ChannelChain, error) {
	channels := []models.ChannelChain{}
	if len(chainIDs) == 0 {
		return channels, nil
	}
	match := activeWindowMatch(now)
	match[chainField] = bson.M{"$in": chainIDs}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"channel": "$" + channelField, "chain_id": "$" + chainField},
		}}},
		{{Key: "$project", Value: bson.M{
			"_id":      0,
			"channel":  "$_id.channel",
			"chain_id": "$_id.chain_id",
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "chain_id", Value: 1}, {Key: "channel", Value: 1}}}},
	}
	if err := r.aggregate(ctx, name, pipeline, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// FindPage returns one page of records matching the query, newest tx_time first.
func (r *TransferRepository) FindPage(ctx context.Context, query TransferQuery) (recs []*models.TransferRecord, err error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	ctx, span := startSpan(ctx, "FindPage",
		attribute.Int64("page_num", query.PageNum),
		attribute.Int64("page_size", query.PageSize))
	defer func() { endSpan(span, err) }()

	opts := options.Find().
		SetProjection(bson.M{"_id": 0}).
		SetSort(bson.D{{Key: "tx_time", Value: -1}, {Key: "record_id", Value: -1}}).
		SetSkip(query.Skip()).
		SetLimit(query.Limit())
	return r.find(ctx, BuildFilter(query), opts)
}

// CountPage counts every record matching the query's filter, ignoring pagination.
func (r *TransferRepository) CountPage(ctx context.Context, query TransferQuery) (int64, error) {
	if err := query.ValidateFilter(); err != nil {
		return 0, err
	}
	return r.count(ctx, "CountPage", BuildFilter(query))
}

// FindEarliest returns the record with the smallest tx_time. An empty
// collection yields mongo.ErrNoDocuments.
func (r *TransferRepository) FindEarliest(ctx context.Context) (rec *models.TransferRecord, err error) {
	ctx, span := startSpan(ctx, "FindEarliest")
	defer func() { endSpan(span, err) }()
	opts := options.FindOne().
		SetProjection(bson.M{"_id": 0}).
		SetSort(bson.D{{Key: "tx_time", Value: 1}})
	var res models.TransferRecord
	if err = r.coll.FindOne(ctx, bson.M{}, opts).Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

// FindByStatusOldestFirst returns up to limit records in status, oldest tx_time first.
func (r *TransferRepository) FindByStatusOldestFirst(ctx context.Context, status models.Status, limit int64) (recs []*models.TransferRecord, err error) {
	ctx, span := startSpan(ctx, "FindByStatusOldestFirst",
		attribute.String("status", status.String()),
		attribute.Int64("limit", limit))
	defer func() { endSpan(span, err) }()
	opts := options.Find().
		SetProjection(bson.M{"_id": 0}).
		SetSort(bson.D{{Key: "tx_time", Value: 1}}).
		SetLimit(limit)
	return r.find(ctx, bson.M{"status": status}, opts)
}

func (r *TransferRepository) FindByRecordID(ctx context.Context, recordID string) (rec *models.TransferRecord, err error) {
	ctx, span := startSpan(ctx, "FindByRecordID", attribute.String("record_id", recordID))
	defer func() { endSpan(span, err) }()
	var res models.TransferRecord
	err = r.coll.FindOne(ctx, bson.M{"record_id": recordID}, options.FindOne().SetProjection(bson.M{"_id": 0})).Decode(&res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// SetBaseDenom patches only base_denom and update_at of an existing record.
func (r *TransferRepository) SetBaseDenom(ctx context.Context, recordID, baseDenom string) (err error) {
	ctx, span := startSpan(ctx, "SetBaseDenom", attribute.String("record_id", recordID))
	defer func() { endSpan(span, err) }()
	res, err := r.coll.UpdateOne(ctx, bson.M{"record_id": recordID}, bson.M{
		"$set": bson.M{
			"base_denom": baseDenom,
			"update_at":  r.now().Unix(),
		},
	})
	if err != nil {
		return fmt.Errorf("set base denom of %s: %w", recordID, err)
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *TransferRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.TransferRecord, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find transfer records: %w", err)
	}
	recs := []*models.TransferRecord{}
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decode transfer records: %w", err)
	}
	return recs, nil
}
