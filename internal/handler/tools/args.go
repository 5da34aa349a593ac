package tools

// Tool names.
const (
	AnalyzeOptionsFlow         = "analyze_options_flow"
	ConfigureOptionsMonitoring = "configure_options_monitoring"
	GetMonitoringStatus        = "get_monitoring_status"
	DataBrokerHealthCheck      = "data_broker_health_check"
)

type tickerArgs struct {
	Ticker string `json:"ticker"`
}

type configureArgs struct {
	Ticker         string              `json:"ticker"`
	Configurations []configurationArgs `json:"configurations"`
}

type configurationArgs struct {
	Expiration       int       `json:"expiration" validate:"required,expiration"`
	StrikeRange      []float64 `json:"strike_range" validate:"required,min=1,dive,gt=0"`
	IncludeBothTypes *bool     `json:"include_both_types" default:"true"`
}

var tickerSchema = map[string]interface{}{
	"type":        "string",
	"description": "Stock ticker symbol, e.g. SPY",
}

func definitions() []Tool {
	return []Tool{
		{
			Name:        AnalyzeOptionsFlow,
			Description: "Analyze options order flow for a ticker: monitored contracts grouped by expiration and strike, detected sweep/block/unusual-volume patterns, trend history and institutional bias.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"ticker": tickerSchema},
				"required":   []string{"ticker"},
			},
		},
		{
			Name:        ConfigureOptionsMonitoring,
			Description: "Configure which option contracts the data broker monitors for a ticker. Each configuration adds strikes of one expiration, calls only or calls and puts.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"ticker": tickerSchema,
					"configurations": map[string]interface{}{
						"type":     "array",
						"minItems": 1,
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"expiration": map[string]interface{}{
									"type":        "integer",
									"description": "Expiration date as YYYYMMDD, e.g. 20240419",
								},
								"strike_range": map[string]interface{}{
									"type":        "array",
									"items":       map[string]interface{}{"type": "number", "exclusiveMinimum": 0},
									"minItems":    1,
									"description": "Strike prices to monitor, e.g. [400, 405, 410]",
								},
								"include_both_types": map[string]interface{}{
									"type":        "boolean",
									"default":     true,
									"description": "Monitor puts as well as calls",
								},
							},
							"required": []string{"expiration", "strike_range"},
						},
					},
				},
				"required": []string{"ticker", "configurations"},
			},
		},
		{
			Name:        GetMonitoringStatus,
			Description: "List the option contracts currently monitored for a ticker.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"ticker": tickerSchema},
				"required":   []string{"ticker"},
			},
		},
		{
			Name:        DataBrokerHealthCheck,
			Description: "Check that the options order flow data broker is reachable and serving.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}
