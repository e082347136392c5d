package db

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"strings"

	"github.com/gorilla/schema"
	"github.com/scalarorg/ibc-tracker/pkg/db/models"
	"go.mongodb.org/mongo-driver/bson"
)

// AllChains is the chain id wildcard accepted in TransferQuery.ChainID.
const AllChains = "allchain"

var ErrInvalidQuery = errors.New("invalid transfer query")

// listParams accept comma separated values; every other parameter is taken verbatim.
var listParams = map[string]bool{"status": true, "chain_id": true, "denom": true}

// TransferQuery describes a filtered, paginated listing of transfer records.
// PageNum defaults to 1; PageSize has no default and must be positive for FindPage.
type TransferQuery struct {
	PageNum       int64           `schema:"page_num" validate:"gte=1"`
	PageSize      int64           `schema:"page_size" validate:"gt=0"`
	Status        []models.Status `schema:"status" validate:"dive,transfer_status"`
	ChainID       []string        `schema:"chain_id" validate:"max=2,dive,required"`
	SourceChannel string          `schema:"sc_channel"`
	DestChannel   string          `schema:"dc_channel"`
	Denom         []string        `schema:"denom" validate:"dive,required"`
	StartTime     int64           `schema:"start_time" validate:"gte=0"`
	EndTime       int64           `schema:"end_time" validate:"gte=0"`
	Search        string          `schema:"search"`
}

var (
	queryValidator = models.NewValidator()
	queryDecoder   = newQueryDecoder()
)

func newQueryDecoder() *schema.Decoder {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	decoder.RegisterConverter(models.Status(0), func(value string) reflect.Value {
		status, err := models.ParseStatus(value)
		if err != nil {
			return reflect.Value{}
		}
		return reflect.ValueOf(status)
	})
	return decoder
}

// ParseTransferQuery decodes query string parameters into a TransferQuery.
// Unknown keys are ignored, malformed values are rejected and comma separated
// values of status, chain_id and denom are split. page_num defaults to 1 only
// when absent.
func ParseTransferQuery(values url.Values) (TransferQuery, error) {
	normalized := make(url.Values, len(values))
	for key, vals := range values {
		for _, val := range vals {
			if !listParams[key] {
				if val = strings.TrimSpace(val); val != "" {
					normalized.Add(key, val)
				}
				continue
			}
			for _, part := range strings.Split(val, ",") {
				if part = strings.TrimSpace(part); part != "" {
					normalized.Add(key, part)
				}
			}
		}
	}

	var query TransferQuery
	if err := queryDecoder.Decode(&query, normalized); err != nil {
		return TransferQuery{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if _, ok := values["page_num"]; !ok {
		query.PageNum = 1
	}
	return query, nil
}

// Validate checks pagination and filter constraints.
func (q TransferQuery) Validate() error {
	if err := queryValidator.Struct(q); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if q.PageNum-1 > math.MaxInt64/q.PageSize {
		return fmt.Errorf("%w: page_num %d is out of range for page_size %d", ErrInvalidQuery, q.PageNum, q.PageSize)
	}
	if q.StartTime > 0 && q.EndTime > 0 && q.StartTime > q.EndTime {
		return fmt.Errorf("%w: start_time %d is after end_time %d", ErrInvalidQuery, q.StartTime, q.EndTime)
	}
	return nil
}

// ValidateFilter checks the filter fields only.
func (q TransferQuery) ValidateFilter() error {
	q.PageNum, q.PageSize = 1, 1
	return q.Validate()
}

func (q TransferQuery) Skip() int64 {
	return (q.PageNum - 1) * q.PageSize
}

func (q TransferQuery) Limit() int64 {
	return q.PageSize
}

// BuildFilter translates the query into a store filter. It does no I/O and
// does not look at the pagination fields.
func BuildFilter(q TransferQuery) bson.M {
	filter := bson.M{}

	statuses := q.Status
	if len(statuses) == 0 {
		statuses = models.ActiveStatuses
	}
	filter["status"] = bson.M{"$in": statuses}

	switch {
	case q.StartTime > 0 && q.EndTime > 0:
		filter["tx_time"] = bson.M{"$gte": q.StartTime, "$lte": q.EndTime}
	case q.StartTime > 0:
		filter["tx_time"] = bson.M{"$gte": q.StartTime}
	case q.EndTime > 0:
		filter["tx_time"] = bson.M{"$lte": q.EndTime}
	}

	var or [][]bson.M
	switch len(q.ChainID) {
	case 1:
		if chain := q.ChainID[0]; chain != AllChains {
			or = append(or, []bson.M{
				{"sc_chain_id": chain},
				{"dc_chain_id": chain},
			})
		}
	case 2:
		if src := q.ChainID[0]; src != AllChains {
			filter["sc_chain_id"] = src
		}
		if dst := q.ChainID[1]; dst != AllChains {
			filter["dc_chain_id"] = dst
		}
	}

	if q.SourceChannel != "" {
		filter["sc_channel"] = q.SourceChannel
	}
	if q.DestChannel != "" {
		filter["dc_channel"] = q.DestChannel
	}

	if len(q.Denom) > 0 {
		var ibcDenoms, baseDenoms []string
		for _, denom := range q.Denom {
			if models.IsIbcDenom(denom) {
				ibcDenoms = append(ibcDenoms, denom)
			} else {
				baseDenoms = append(baseDenoms, denom)
			}
		}
		var denomOr []bson.M
		if len(ibcDenoms) > 0 {
			denomOr = append(denomOr,
				bson.M{"denoms.sc_denom": bson.M{"$in": ibcDenoms}},
				bson.M{"denoms.dc_denom": bson.M{"$in": ibcDenoms}},
			)
		}
		if len(baseDenoms) > 0 {
			if len(denomOr) == 0 {
				filter["base_denom"] = bson.M{"$in": baseDenoms}
			} else {
				denomOr = append(denomOr, bson.M{"base_denom": bson.M{"$in": baseDenoms}})
			}
		}
		if len(denomOr) > 0 {
			or = append(or, denomOr)
		}
	}

	if search := strings.TrimSpace(q.Search); search != "" {
		or = append(or, []bson.M{
			{"record_id": search},
			{"sc_addr": search},
			{"dc_addr": search},
			{"sc_tx_info.hash": search},
			{"dc_tx_info.hash": search},
		})
	}

	switch len(or) {
	case 0:
	case 1:
		filter["$or"] = or[0]
	default:
		and := make([]bson.M, 0, len(or))
		for _, clause := range or {
			and = append(and, bson.M{"$or": clause})
		}
		filter["$and"] = and
	}
	return filter
}
