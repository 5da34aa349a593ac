package broker

import (
	"strings"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"

	"OptionsFlow/internal/domain/models"
	"OptionsFlow/pkg/apperr"
)

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	return s
}

func fullSnapshot() map[string]interface{} {
	return map[string]interface{}{
		"ticker":        "spy",
		"snapshot_time": "2024-04-18T15:00:00Z",
		"status":        "success",
		"unknown_field": "ignored",
		"contracts": []interface{}{
			map[string]interface{}{
				"expiration":  20240419,
				"strike":      405.0,
				"option_type": "C",
				"symbol":      "SPY240419C00405000",
				"latest_aggregation": map[string]interface{}{
					"total_volume": 6200,
					"bid_volume":   1200,
					"ask_volume":   5000,
					"imbalance":    0.61,
				},
				"recent_patterns": []interface{}{
					map[string]interface{}{
						"type":       "sweep",
						"confidence": 0.91,
						"timestamp":  "2024-04-18T14:59:00Z",
						"direction":  "buy",
						"metrics":    map[string]interface{}{"avg_size": 25.5, "fills": 12},
					},
				},
			},
		},
		"patterns": []interface{}{
			map[string]interface{}{
				"type":        "BLOCK",
				"expiration":  20240419,
				"strike":      410,
				"option_type": "P",
				"confidence":  0.7,
				"timestamp":   1713452340,
			},
		},
		"trends": []interface{}{
			map[string]interface{}{
				"start": "2024-04-18T14:00:00Z",
				"end":   "2024-04-18T14:20:00Z",
				"bias":  "bullish",
				"changes": []interface{}{
					map[string]interface{}{"time": "2024-04-18T14:10:00Z", "description": "call sweep cluster"},
				},
			},
		},
		"summary": map[string]interface{}{
			"dominant_flow":  "bullish",
			"call_volume":    6200,
			"put_volume":     800,
			"put_call_ratio": 0.13,
			"hot_contracts": []interface{}{
				map[string]interface{}{"expiration": 20240419, "strike": 405, "option_type": "C", "volume": 6200},
			},
		},
	}
}

func TestDecodeSnapshot(t *testing.T) {
	snap, err := decodeSnapshot(mustStruct(t, fullSnapshot()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Ticker != "SPY" {
		t.Fatalf("ticker should be upper-cased, got %s", snap.Ticker)
	}
	if len(snap.Contracts) != 1 || snap.Contracts[0].Key.String() != "SPY 20240419 405.00 CALL" {
		t.Fatalf("unexpected contracts %+v", snap.Contracts)
	}
	if !snap.Contracts[0].IsMonitored {
		t.Fatalf("contracts default to monitored")
	}
	if snap.Contracts[0].Aggregation.TotalVolume != 6200 {
		t.Fatalf("aggregation not decoded")
	}
	if len(snap.Patterns) != 2 {
		t.Fatalf("expected contract-scoped and top-level patterns, got %d", len(snap.Patterns))
	}
	if snap.Patterns[0].Kind != models.PatternSweep || snap.Patterns[0].Key.Side != models.Call {
		t.Fatalf("unexpected first pattern %+v", snap.Patterns[0])
	}
	if got := snap.Patterns[0].Metrics; len(got) != 2 || got["avg_size"] != 25.5 || got["fills"] != 12 {
		t.Fatalf("pattern metrics not decoded: %v", got)
	}
	if snap.Patterns[1].Metrics != nil {
		t.Fatalf("absent metrics should stay nil")
	}
	if snap.Patterns[1].Key.Side != models.Put || snap.Patterns[1].Timestamp.Unix() != 1713452340 {
		t.Fatalf("unexpected second pattern %+v", snap.Patterns[1])
	}
	if len(snap.Trends) != 1 || snap.Trends[0].Bias != "BULLISH" || len(snap.Trends[0].Changes) != 1 {
		t.Fatalf("unexpected trends %+v", snap.Trends)
	}
	if snap.Summary == nil || snap.Summary.DominantFlow != "BULLISH" || len(snap.Summary.HotContracts) != 1 {
		t.Fatalf("unexpected summary %+v", snap.Summary)
	}
}

func TestDecodeSnapshotEmpty(t *testing.T) {
	snap, err := decodeSnapshot(mustStruct(t, map[string]interface{}{"ticker": "SPY"}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Contracts) != 0 || snap.Summary != nil {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestDecodeSnapshotProtocolErrors(t *testing.T) {
	cases := map[string]func(m map[string]interface{}){
		"missing ticker": func(m map[string]interface{}) { delete(m, "ticker") },
		"strike as string": func(m map[string]interface{}) {
			m["contracts"].([]interface{})[0].(map[string]interface{})["strike"] = "405"
		},
		"unknown side": func(m map[string]interface{}) {
			m["contracts"].([]interface{})[0].(map[string]interface{})["option_type"] = "X"
		},
		"fractional expiration": func(m map[string]interface{}) {
			m["contracts"].([]interface{})[0].(map[string]interface{})["expiration"] = 20240419.5
		},
		"confidence out of range": func(m map[string]interface{}) {
			m["patterns"].([]interface{})[0].(map[string]interface{})["confidence"] = 1.4
		},
		"pattern without timestamp": func(m map[string]interface{}) {
			delete(m["patterns"].([]interface{})[0].(map[string]interface{}), "timestamp")
		},
		"contracts not a list": func(m map[string]interface{}) { m["contracts"] = "none" },
		"expiration not a date": func(m map[string]interface{}) {
			m["contracts"].([]interface{})[0].(map[string]interface{})["expiration"] = 20241340
		},
		"volume beyond exact range": func(m map[string]interface{}) {
			m["patterns"].([]interface{})[0].(map[string]interface{})["total_volume"] = 1e19
		},
		"metric not a number": func(m map[string]interface{}) {
			m["patterns"].([]interface{})[0].(map[string]interface{})["metrics"] = map[string]interface{}{"fills": "many"}
		},
		"trend ends early": func(m map[string]interface{}) {
			m["trends"].([]interface{})[0].(map[string]interface{})["end"] = "2024-04-18T13:00:00Z"
		},
	}
	for name, mutate := range cases {
		m := fullSnapshot()
		mutate(m)
		_, err := decodeSnapshot(mustStruct(t, m))
		if apperr.KindOf(err) != apperr.Protocol {
			t.Fatalf("%s: expected PROTOCOL, got %v", name, err)
		}
	}
}

func TestDecodeTrimsContractTicker(t *testing.T) {
	m := fullSnapshot()
	m["ticker"] = " spy "
	m["contracts"].([]interface{})[0].(map[string]interface{})["ticker"] = "SPY "
	snap, err := decodeSnapshot(mustStruct(t, m))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Ticker != "SPY" || snap.Contracts[0].Key.Ticker != "SPY" {
		t.Fatalf("tickers should be trimmed, got %q and %q", snap.Ticker, snap.Contracts[0].Key.Ticker)
	}
}

func TestDecodeErrorNamesPath(t *testing.T) {
	m := fullSnapshot()
	delete(m["contracts"].([]interface{})[0].(map[string]interface{}), "strike")
	_, err := decodeSnapshot(mustStruct(t, m))
	if err == nil || !strings.Contains(err.Error(), "contracts[0].strike") {
		t.Fatalf("error should name the field path, got %v", err)
	}
}

func TestDecodeConfigureReply(t *testing.T) {
	r, err := decodeConfigureReply(mustStruct(t, map[string]interface{}{
		"status":                    "SUCCESS",
		"contracts_added":           6,
		"total_contracts_monitored": 6,
		"contract_symbols":          []interface{}{"SPY240419C00400000"},
	}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Status != "success" || r.ContractsAdded != 6 || len(r.ContractSymbols) != 1 {
		t.Fatalf("unexpected %+v", r)
	}
	if _, err := decodeConfigureReply(mustStruct(t, map[string]interface{}{"message": "ok"})); apperr.KindOf(err) != apperr.Protocol {
		t.Fatalf("missing status must be PROTOCOL, got %v", err)
	}
}

func TestDecodeStatusFiltersTicker(t *testing.T) {
	st, err := decodeStatus(mustStruct(t, map[string]interface{}{
		"status": "success",
		"configurations": []interface{}{
			map[string]interface{}{"ticker": "SPY", "expiration": 20240419, "strikes": []interface{}{405, 400}, "option_types": []interface{}{"P", "C"}},
			map[string]interface{}{"ticker": "QQQ", "expiration": 20240419, "strikes": []interface{}{350}, "option_types": []interface{}{"C"}},
		},
	}), "SPY")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(st.Configurations) != 1 {
		t.Fatalf("expected only SPY configuration, got %d", len(st.Configurations))
	}
	set := st.Configurations[0]
	if set.ContractCount != 4 || !set.Active || set.Sides[0] != models.Call {
		t.Fatalf("unexpected set %+v", set)
	}
	if set.Strikes[0].StringFixed(2) != "400.00" {
		t.Fatalf("strikes should be sorted, got %v", set.Strikes)
	}
}
