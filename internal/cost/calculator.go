package cost

// Rates holds geocoding request pricing.
type Rates struct {
	// PerThousand is the USD price per 1,000 requests.
	PerThousand float64 `yaml:"per_thousand" mapstructure:"per_thousand"`
	// VolumePerThousand applies to requests beyond VolumeThreshold.
	VolumePerThousand float64 `yaml:"volume_per_thousand" mapstructure:"volume_per_thousand"`
	VolumeThreshold   int     `yaml:"volume_threshold" mapstructure:"volume_threshold"`
	// FreeRequests are not billed.
	FreeRequests int `yaml:"free_requests" mapstructure:"free_requests"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Geocode computes the cost of n geocode requests.
func (c *Calculator) Geocode(n int) float64 {
	billable := n - c.rates.FreeRequests
	if billable <= 0 {
		return 0
	}

	standard := billable
	var volume int
	if c.rates.VolumeThreshold > 0 && billable > c.rates.VolumeThreshold {
		standard = c.rates.VolumeThreshold
		volume = billable - c.rates.VolumeThreshold
	}

	volumeRate := c.rates.VolumePerThousand
	if volumeRate == 0 {
		volumeRate = c.rates.PerThousand
	}

	return (float64(standard)/1000)*c.rates.PerThousand + (float64(volume)/1000)*volumeRate
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		PerThousand:       5.00,
		VolumePerThousand: 4.00,
		VolumeThreshold:   100000,
	}
}
