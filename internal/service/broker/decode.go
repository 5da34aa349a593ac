package broker

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/pkg/apperr"
	"OptionsFlow/pkg/util"
)

// object is a read-only view over a Struct that reports missing or
// mistyped fields as PROTOCOL errors. Unknown fields are ignored.
// maxExactInt is the largest integer a float64 carries exactly.
const maxExactInt = 1 << 53

type object struct {
	path   string
	fields map[string]*structpb.Value
}

func newObject(path string, s *structpb.Struct) object {
	return object{path: path, fields: s.GetFields()}
}

func (o object) at(key string) string {
	if o.path == "" {
		return key
	}
	return o.path + "." + key
}

func (o object) missing(key string) error {
	return apperr.ProtocolErrorf("reply field %s is missing", o.at(key))
}

func (o object) mistyped(key, want string) error {
	return apperr.ProtocolErrorf("reply field %s is not a %s", o.at(key), want)
}

// lookup returns the value, treating explicit nulls as absent.
func (o object) lookup(key string) (*structpb.Value, bool) {
	v, ok := o.fields[key]
	if !ok || v == nil {
		return nil, false
	}
	if _, null := v.GetKind().(*structpb.Value_NullValue); null {
		return nil, false
	}
	return v, true
}

func (o object) str(key string) (string, error) {
	v, ok := o.lookup(key)
	if !ok {
		return "", o.missing(key)
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", o.mistyped(key, "string")
	}
	return sv.StringValue, nil
}

func (o object) optStr(key string) (string, error) {
	if _, ok := o.lookup(key); !ok {
		return "", nil
	}
	return o.str(key)
}

func (o object) num(key string) (float64, error) {
	v, ok := o.lookup(key)
	if !ok {
		return 0, o.missing(key)
	}
	nv, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, o.mistyped(key, "number")
	}
	if math.IsNaN(nv.NumberValue) || math.IsInf(nv.NumberValue, 0) {
		return 0, o.mistyped(key, "finite number")
	}
	return nv.NumberValue, nil
}

func (o object) optNum(key string) (float64, error) {
	if _, ok := o.lookup(key); !ok {
		return 0, nil
	}
	return o.num(key)
}

func (o object) integer(key string) (int64, error) {
	n, err := o.num(key)
	if err != nil {
		return 0, err
	}
	if n != math.Trunc(n) {
		return 0, o.mistyped(key, "whole number")
	}
	if math.Abs(n) > maxExactInt {
		return 0, apperr.ProtocolErrorf("reply field %s out of range: %v", o.at(key), n)
	}
	return int64(n), nil
}

// expiration reads a YYYYMMDD integer that must be a real calendar date.
func (o object) expiration(key string) (int, error) {
	n, err := o.integer(key)
	if err != nil {
		return 0, err
	}
	if _, err := util.ParseExpiration(int(n)); err != nil {
		return 0, apperr.ProtocolErrorf("reply field %s: %v", o.at(key), err)
	}
	return int(n), nil
}

// numbers reads an optional object whose values are all numbers.
func (o object) numbers(key string) (map[string]float64, error) {
	m, ok, err := o.optObject(key)
	if err != nil || !ok || len(m.fields) == 0 {
		return nil, err
	}
	out := make(map[string]float64, len(m.fields))
	for name := range m.fields {
		v, err := m.num(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func (o object) optInt(key string) (int64, error) {
	if _, ok := o.lookup(key); !ok {
		return 0, nil
	}
	return o.integer(key)
}

func (o object) optBool(key string, def bool) (bool, error) {
	v, ok := o.lookup(key)
	if !ok {
		return def, nil
	}
	bv, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, o.mistyped(key, "boolean")
	}
	return bv.BoolValue, nil
}

// timestamp accepts RFC3339 strings and numeric unix seconds or milliseconds.
func (o object) timestamp(key string) (time.Time, error) {
	v, ok := o.lookup(key)
	if !ok {
		return time.Time{}, o.missing(key)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		if t, ok := util.ParseTime(k.StringValue); ok {
			return t.UTC(), nil
		}
	case *structpb.Value_NumberValue:
		if t, ok := util.UnixNumber(k.NumberValue); ok {
			return t, nil
		}
	}
	return time.Time{}, o.mistyped(key, "timestamp")
}

func (o object) optTimestamp(key string) (time.Time, error) {
	if _, ok := o.lookup(key); !ok {
		return time.Time{}, nil
	}
	return o.timestamp(key)
}

func (o object) list(key string) ([]*structpb.Value, error) {
	v, ok := o.lookup(key)
	if !ok {
		return nil, nil
	}
	lv, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, o.mistyped(key, "list")
	}
	return lv.ListValue.GetValues(), nil
}

func (o object) requiredList(key string) ([]*structpb.Value, error) {
	if _, ok := o.lookup(key); !ok {
		return nil, o.missing(key)
	}
	return o.list(key)
}

// objects decodes a list of objects, handing each to fn.
func (o object) objects(key string, fn func(object) error) error {
	items, err := o.list(key)
	if err != nil {
		return err
	}
	for i, item := range items {
		sv, ok := item.GetKind().(*structpb.Value_StructValue)
		if !ok {
			return apperr.ProtocolErrorf("reply field %s[%d] is not an object", o.at(key), i)
		}
		if err := fn(newObject(o.at(key)+"["+strconv.Itoa(i)+"]", sv.StructValue)); err != nil {
			return err
		}
	}
	return nil
}

func (o object) optObject(key string) (object, bool, error) {
	v, ok := o.lookup(key)
	if !ok {
		return object{}, false, nil
	}
	sv, ok := v.GetKind().(*structpb.Value_StructValue)
	if !ok {
		return object{}, false, o.mistyped(key, "object")
	}
	return newObject(o.at(key), sv.StructValue), true, nil
}

func (o object) side(key string) (models.Side, error) {
	s, err := o.str(key)
	if err != nil {
		return "", err
	}
	side, ok := models.ParseSide(s)
	if !ok {
		return "", apperr.ProtocolErrorf("reply field %s has unknown option type %q", o.at(key), s)
	}
	return side, nil
}

func (o object) strike(key string) (decimal.Decimal, error) {
	n, err := o.num(key)
	if err != nil {
		return decimal.Zero, err
	}
	if n <= 0 {
		return decimal.Zero, apperr.ProtocolErrorf("reply field %s must be positive", o.at(key))
	}
	return decimal.NewFromFloat(n), nil
}

// contractKey reads expiration/strike/option_type; ticker falls back to def.
func (o object) contractKey(def string) (models.ContractKey, error) {
	ticker, err := o.optStr("ticker")
	if err != nil {
		return models.ContractKey{}, err
	}
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		ticker = def
	}
	exp, err := o.expiration("expiration")
	if err != nil {
		return models.ContractKey{}, err
	}
	strike, err := o.strike("strike")
	if err != nil {
		return models.ContractKey{}, err
	}
	side, err := o.side("option_type")
	if err != nil {
		return models.ContractKey{}, err
	}
	return models.NewContractKey(strings.ToUpper(ticker), exp, strike, side), nil
}

// decodeSnapshot validates a GetOptionsOrderFlowSnapshot reply.
func decodeSnapshot(s *structpb.Struct) (*models.FlowSnapshot, error) {
	root := newObject("", s)
	ticker, err := root.str("ticker")
	if err != nil {
		return nil, err
	}
	snap := &models.FlowSnapshot{Ticker: strings.ToUpper(strings.TrimSpace(ticker))}

	if snap.Time, err = root.optTimestamp("snapshot_time"); err != nil {
		return nil, err
	}
	if snap.Status, err = root.optStr("status"); err != nil {
		return nil, err
	}
	if snap.Message, err = root.optStr("message"); err != nil {
		return nil, err
	}

	err = root.objects("contracts", func(o object) error {
		c, patterns, err := decodeContract(o, snap.Ticker)
		if err != nil {
			return err
		}
		snap.Contracts = append(snap.Contracts, c)
		snap.Patterns = append(snap.Patterns, patterns...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = root.objects("patterns", func(o object) error {
		key, err := o.contractKey(snap.Ticker)
		if err != nil {
			return err
		}
		p, err := decodePattern(o, key)
		if err != nil {
			return err
		}
		snap.Patterns = append(snap.Patterns, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = root.objects("trends", func(o object) error {
		tr, err := decodeTrend(o, snap.Ticker)
		if err != nil {
			return err
		}
		snap.Trends = append(snap.Trends, tr)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if so, ok, err := root.optObject("summary"); err != nil {
		return nil, err
	} else if ok {
		if snap.Summary, err = decodeSummary(so, snap.Ticker); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func decodeContract(o object, ticker string) (models.ContractActivity, []models.PatternDetection, error) {
	var c models.ContractActivity
	key, err := o.contractKey(ticker)
	if err != nil {
		return c, nil, err
	}
	c.Key = key
	if c.Symbol, err = o.optStr("symbol"); err != nil {
		return c, nil, err
	}
	if c.IsMonitored, err = o.optBool("is_monitored", true); err != nil {
		return c, nil, err
	}
	if c.LastUpdate, err = o.optTimestamp("last_update"); err != nil {
		return c, nil, err
	}

	if ao, ok, err := o.optObject("latest_aggregation"); err != nil {
		return c, nil, err
	} else if ok {
		agg, err := decodeAggregation(ao)
		if err != nil {
			return c, nil, err
		}
		c.Aggregation = agg
	}

	var patterns []models.PatternDetection
	err = o.objects("recent_patterns", func(po object) error {
		p, err := decodePattern(po, key)
		if err != nil {
			return err
		}
		patterns = append(patterns, p)
		return nil
	})
	if err != nil {
		return c, nil, err
	}
	return c, patterns, nil
}

func decodeAggregation(o object) (*models.Aggregation, error) {
	var (
		a   models.Aggregation
		err error
	)
	if a.Timestamp, err = o.optTimestamp("timestamp"); err != nil {
		return nil, err
	}
	ints := []struct {
		key string
		dst *int64
	}{
		{"total_volume", &a.TotalVolume},
		{"bid_volume", &a.BidVolume},
		{"ask_volume", &a.AskVolume},
		{"transaction_count", &a.TransactionCount},
	}
	for _, f := range ints {
		if *f.dst, err = o.optInt(f.key); err != nil {
			return nil, err
		}
	}
	floats := []struct {
		key string
		dst *float64
	}{
		{"avg_bid", &a.AvgBid},
		{"avg_ask", &a.AvgAsk},
		{"imbalance", &a.Imbalance},
		{"volume_weighted_price", &a.VolumeWeightedPrice},
	}
	for _, f := range floats {
		if *f.dst, err = o.optNum(f.key); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func decodePattern(o object, key models.ContractKey) (models.PatternDetection, error) {
	p := models.PatternDetection{Key: key}
	kind, err := o.str("type")
	if err != nil {
		return p, err
	}
	p.Kind = strings.ToUpper(strings.TrimSpace(kind))
	if p.Kind == "" {
		return p, apperr.ProtocolErrorf("reply field %s is empty", o.at("type"))
	}
	if p.Confidence, err = o.num("confidence"); err != nil {
		return p, err
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return p, apperr.ProtocolErrorf("reply field %s out of range [0,1]: %v", o.at("confidence"), p.Confidence)
	}
	if p.Timestamp, err = o.timestamp("timestamp"); err != nil {
		return p, err
	}
	if p.Direction, err = o.optStr("direction"); err != nil {
		return p, err
	}
	p.Direction = strings.ToUpper(p.Direction)
	if p.Description, err = o.optStr("description"); err != nil {
		return p, err
	}
	if p.TotalVolume, err = o.optInt("total_volume"); err != nil {
		return p, err
	}
	if p.DurationSeconds, err = o.optNum("duration_seconds"); err != nil {
		return p, err
	}
	if p.Metrics, err = o.numbers("metrics"); err != nil {
		return p, err
	}
	return p, nil
}

func decodeTrend(o object, ticker string) (models.TrendInterval, error) {
	var (
		tr  models.TrendInterval
		err error
	)
	if tr.Start, err = o.timestamp("start"); err != nil {
		return tr, err
	}
	if tr.End, err = o.timestamp("end"); err != nil {
		return tr, err
	}
	if tr.End.Before(tr.Start) {
		return tr, apperr.ProtocolErrorf("reply field %s ends before it starts", o.path)
	}
	if tr.Bias, err = o.optStr("bias"); err != nil {
		return tr, err
	}
	tr.Bias = strings.ToUpper(tr.Bias)
	if tr.Bias == "" {
		tr.Bias = models.Neutral
	}
	if co, ok, err := o.optObject("contract"); err != nil {
		return tr, err
	} else if ok {
		key, err := co.contractKey(ticker)
		if err != nil {
			return tr, err
		}
		tr.Key = &key
	}
	err = o.objects("changes", func(c object) error {
		at, err := c.timestamp("time")
		if err != nil {
			return err
		}
		desc, err := c.str("description")
		if err != nil {
			return err
		}
		tr.Changes = append(tr.Changes, models.TrendChange{Time: at, Description: desc})
		return nil
	})
	return tr, err
}

func decodeSummary(o object, ticker string) (*models.BrokerSummary, error) {
	var (
		s   models.BrokerSummary
		err error
		n   int64
	)
	ints := []struct {
		key string
		dst *int
	}{
		{"total_contracts_monitored", &s.TotalContractsMonitored},
		{"active_patterns", &s.ActivePatterns},
		{"sweep_patterns", &s.SweepPatterns},
		{"block_patterns", &s.BlockPatterns},
		{"unusual_volume_patterns", &s.UnusualVolumePatterns},
	}
	for _, f := range ints {
		if n, err = o.optInt(f.key); err != nil {
			return nil, err
		}
		*f.dst = int(n)
	}
	if s.TotalVolume, err = o.optInt("total_volume"); err != nil {
		return nil, err
	}
	if s.CallVolume, err = o.optInt("call_volume"); err != nil {
		return nil, err
	}
	if s.PutVolume, err = o.optInt("put_volume"); err != nil {
		return nil, err
	}
	if s.PutCallRatio, err = o.optNum("put_call_ratio"); err != nil {
		return nil, err
	}
	if s.DominantFlow, err = o.optStr("dominant_flow"); err != nil {
		return nil, err
	}
	s.DominantFlow = strings.ToUpper(s.DominantFlow)

	err = o.objects("hot_contracts", func(h object) error {
		key, err := h.contractKey(ticker)
		if err != nil {
			return err
		}
		hc := models.HotContract{Key: key}
		if hc.Symbol, err = h.optStr("symbol"); err != nil {
			return err
		}
		if hc.Volume, err = h.optInt("volume"); err != nil {
			return err
		}
		if n, err = h.optInt("pattern_count"); err != nil {
			return err
		}
		hc.PatternCount = int(n)
		if hc.ActivityScore, err = h.optNum("activity_score"); err != nil {
			return err
		}
		s.HotContracts = append(s.HotContracts, hc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// decodeConfigureReply validates a ConfigureOptionsOrderFlowMonitoring reply.
func decodeConfigureReply(s *structpb.Struct) (*models.ConfigureReply, error) {
	o := newObject("", s)
	var (
		r   models.ConfigureReply
		err error
		n   int64
	)
	if r.Status, err = o.str("status"); err != nil {
		return nil, err
	}
	r.Status = strings.ToLower(r.Status)
	if r.Message, err = o.optStr("message"); err != nil {
		return nil, err
	}
	if n, err = o.optInt("contracts_added"); err != nil {
		return nil, err
	}
	r.ContractsAdded = int(n)
	if n, err = o.optInt("contracts_removed"); err != nil {
		return nil, err
	}
	r.ContractsRemoved = int(n)
	if n, err = o.optInt("total_contracts_monitored"); err != nil {
		return nil, err
	}
	r.TotalContractsMonitored = int(n)
	if r.Timestamp, err = o.optTimestamp("timestamp"); err != nil {
		return nil, err
	}
	symbols, err := o.list("contract_symbols")
	if err != nil {
		return nil, err
	}
	for i, v := range symbols {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, apperr.ProtocolErrorf("reply field contract_symbols[%d] is not a string", i)
		}
		r.ContractSymbols = append(r.ContractSymbols, sv.StringValue)
	}
	return &r, nil
}

// decodeStatus validates a GetOptionsOrderFlowMonitoringStatus reply and keeps
// only configurations of ticker.
func decodeStatus(s *structpb.Struct, ticker string) (*models.MonitoringStatus, error) {
	o := newObject("", s)
	st := &models.MonitoringStatus{Ticker: ticker}
	var (
		err error
		n   int64
	)
	if st.Status, err = o.optStr("status"); err != nil {
		return nil, err
	}
	st.Status = strings.ToLower(st.Status)
	if st.Message, err = o.optStr("message"); err != nil {
		return nil, err
	}
	if n, err = o.optInt("total_contracts_monitored"); err != nil {
		return nil, err
	}
	st.TotalContractsMonitored = int(n)
	if n, err = o.optInt("total_tickers"); err != nil {
		return nil, err
	}
	st.TotalTickers = int(n)

	err = o.objects("configurations", func(c object) error {
		set, err := decodeConfiguredSet(c, ticker)
		if err != nil {
			return err
		}
		if set.Ticker == ticker {
			st.Configurations = append(st.Configurations, set)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func decodeConfiguredSet(c object, ticker string) (models.ConfiguredSet, error) {
	var (
		set models.ConfiguredSet
		err error
	)
	t, err := c.optStr("ticker")
	if err != nil {
		return set, err
	}
	set.Ticker = strings.ToUpper(strings.TrimSpace(t))
	if set.Ticker == "" {
		set.Ticker = ticker
	}
	if set.Expiration, err = c.expiration("expiration"); err != nil {
		return set, err
	}

	strikes, err := c.requiredList("strikes")
	if err != nil {
		return set, err
	}
	for i, v := range strikes {
		nv, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok || nv.NumberValue <= 0 {
			return set, apperr.ProtocolErrorf("reply field %s[%d] is not a positive number", c.at("strikes"), i)
		}
		set.Strikes = append(set.Strikes, decimal.NewFromFloat(nv.NumberValue))
	}
	set.Strikes = models.StrikeSet(set.Strikes)

	types, err := c.requiredList("option_types")
	if err != nil {
		return set, err
	}
	seen := map[models.Side]bool{}
	for i, v := range types {
		side, ok := models.ParseSide(v.GetStringValue())
		if !ok {
			return set, apperr.ProtocolErrorf("reply field %s[%d] is not an option type", c.at("option_types"), i)
		}
		seen[side] = true
	}
	for _, side := range []models.Side{models.Call, models.Put} {
		if seen[side] {
			set.Sides = append(set.Sides, side)
		}
	}

	n, err := c.optInt("contract_count")
	if err != nil {
		return set, err
	}
	set.ContractCount = int(n)
	if set.ContractCount == 0 {
		set.ContractCount = len(set.Strikes) * len(set.Sides)
	}
	if set.ConfiguredAt, err = c.optTimestamp("configured_at"); err != nil {
		return set, err
	}
	if set.Active, err = c.optBool("is_active", true); err != nil {
		return set, err
	}
	return set, nil
}
