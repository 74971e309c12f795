package market

import "time"

// Snapshot is the validated, immutable market input for one analysis run.
// It is created once from the upstream validator's output and never mutated;
// optional fields are nil when the source did not supply them.
type Snapshot struct {
	Symbol    string    `json:"symbol"`
	Date      string    `json:"date"` // YYYY-MM-DD
	Timestamp time.Time `json:"timestamp"`

	// Price and dealer-positioning levels
	Spot          float64  `json:"spot"`
	VolTrigger    *float64 `json:"vol_trigger,omitempty"`
	CallWall      *float64 `json:"call_wall,omitempty"`
	CallWall2     *float64 `json:"call_wall_2,omitempty"`
	PutWall       *float64 `json:"put_wall,omitempty"`
	PutWall2      *float64 `json:"put_wall_2,omitempty"`
	GammaWall     *float64 `json:"gamma_wall,omitempty"`
	MaxPain       *float64 `json:"max_pain,omitempty"`
	NetGEX        *float64 `json:"net_gex,omitempty"`

	// Implied volatility term points (annualized decimals, e.g. 0.25)
	IVAtm       float64  `json:"iv_atm"`
	IVFront     *float64 `json:"iv_front,omitempty"`
	IVBack      *float64 `json:"iv_back,omitempty"`
	IVEventWeek *float64 `json:"iv_event_week,omitempty"`
	EventWeek   bool     `json:"event_week"`

	// Historical volatility window set (annualized decimals)
	HV10 float64 `json:"hv10"`
	HV20 float64 `json:"hv20"`
	HV60 float64 `json:"hv60"`

	// Higher-order exposures
	VexNet   *float64 `json:"vex_net,omitempty"`
	VannaAtm *float64 `json:"vanna_atm,omitempty"`

	// Skew (25-delta wing IV minus ATM IV, decimals)
	PutSkew25  *float64 `json:"put_skew_25,omitempty"`
	CallSkew25 *float64 `json:"call_skew_25,omitempty"`

	// Liquidity
	SpreadAtm     *float64 `json:"spread_atm,omitempty"`
	PutCallRatio  *float64 `json:"put_call_ratio,omitempty"`
	VolumeOIRatio *float64 `json:"volume_oi_ratio,omitempty"`

	// Macro context
	VIX   *float64 `json:"vix,omitempty"`
	VIX9D *float64 `json:"vix9d,omitempty"`
	VVIX  *float64 `json:"vvix,omitempty"`
}

// Validate checks the required fields. The core refuses to run the feature
// stage on an invalid snapshot; optional fields are never validated here.
func (s *Snapshot) Validate() []string {
	var missing []string
	if s.Symbol == "" {
		missing = append(missing, "symbol")
	}
	if s.Date == "" {
		missing = append(missing, "date")
	}
	if s.Spot <= 0 {
		missing = append(missing, "spot")
	}
	if s.IVAtm <= 0 {
		missing = append(missing, "iv_atm")
	}
	if s.HV10 < 0 || s.HV20 < 0 || s.HV60 < 0 {
		missing = append(missing, "hv_windows")
	}
	return missing
}

// Summary is the compact snapshot echo persisted on the analysis record.
type Summary struct {
	Spot       float64  `json:"spot"`
	IVAtm      float64  `json:"iv_atm"`
	HV20       float64  `json:"hv20"`
	VolTrigger *float64 `json:"vol_trigger,omitempty"`
	NetGEX     *float64 `json:"net_gex,omitempty"`
	VIX        *float64 `json:"vix,omitempty"`
	EventWeek  bool     `json:"event_week"`
}

// Summarize builds the persisted summary from a snapshot.
func (s *Snapshot) Summarize() Summary {
	return Summary{
		Spot:       s.Spot,
		IVAtm:      s.IVAtm,
		HV20:       s.HV20,
		VolTrigger: s.VolTrigger,
		NetGEX:     s.NetGEX,
		VIX:        s.VIX,
		EventWeek:  s.EventWeek,
	}
}
