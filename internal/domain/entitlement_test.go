package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func todPtr(hour, minute int) *TimeOfDay {
	return &TimeOfDay{Hour: hour, Minute: minute}
}

func TestCheckUsage(t *testing.T) {
	noon := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		plan      Plan
		ent       Entitlement
		usedToday int
		now       time.Time
		wantErr   error
	}{
		{
			name: "unlimited plan passes",
			plan: Plan{},
			ent:  Entitlement{RemainingMeals: nil},
			now:  noon,
		},
		{
			name:    "meal quota exhausted",
			plan:    Plan{DailyLimit: intPtr(5)},
			ent:     Entitlement{RemainingMeals: intPtr(0)},
			now:     noon,
			wantErr: ErrQuotaExhausted,
		},
		{
			name:      "daily limit reached",
			plan:      Plan{DailyLimit: intPtr(2)},
			ent:       Entitlement{RemainingMeals: intPtr(10)},
			usedToday: 2,
			now:       noon,
			wantErr:   ErrDailyLimitReached,
		},
		{
			name:      "under daily limit passes",
			plan:      Plan{DailyLimit: intPtr(2)},
			ent:       Entitlement{RemainingMeals: intPtr(10)},
			usedToday: 1,
			now:       noon,
		},
		{
			name:    "before allowed window",
			plan:    Plan{AllowedFrom: todPtr(11, 0), AllowedTo: todPtr(14, 0)},
			ent:     Entitlement{},
			now:     time.Date(2025, 6, 2, 10, 59, 0, 0, time.UTC),
			wantErr: ErrOutsideAllowedWindow,
		},
		{
			name: "window bounds are inclusive",
			plan: Plan{AllowedFrom: todPtr(11, 0), AllowedTo: todPtr(14, 0)},
			ent:  Entitlement{},
			now:  time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC),
		},
		{
			name:    "after allowed window",
			plan:    Plan{AllowedFrom: todPtr(11, 0), AllowedTo: todPtr(14, 0)},
			ent:     Entitlement{},
			now:     time.Date(2025, 6, 2, 14, 1, 0, 0, time.UTC),
			wantErr: ErrOutsideAllowedWindow,
		},
		{
			// Gates run in order: an exhausted quota wins over a
			// closed window.
			name:    "quota checked before window",
			plan:    Plan{AllowedFrom: todPtr(11, 0), AllowedTo: todPtr(14, 0)},
			ent:     Entitlement{RemainingMeals: intPtr(0)},
			now:     time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC),
			wantErr: ErrQuotaExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckUsage(tt.plan, tt.ent, tt.usedToday, tt.now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDiscounts(t *testing.T) {
	// The worked example: 1000 with a 10% plan stores 900; the ledger
	// later reports discount 90 and final 810 against the stored total.
	total := ApplyDiscount(1000, 10)
	assert.InDelta(t, 900.0, total, 1e-9)

	discount := DiscountAmount(total, 10)
	assert.InDelta(t, 90.0, discount, 1e-9)
	assert.InDelta(t, 810.0, total-discount, 1e-9)

	assert.InDelta(t, 500.0, ApplyDiscount(500, 0), 1e-9)
	assert.InDelta(t, 0.0, DiscountAmount(500, 0), 1e-9)
}

func TestStartOfDay(t *testing.T) {
	at := time.Date(2025, 6, 2, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), StartOfDay(at))
}

func TestTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 9, Minute: 30}, tod)
	assert.Equal(t, "09:30", tod.String())
	assert.Equal(t, 570, tod.Minutes())

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)

	data, err := tod.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"09:30"`, string(data))

	var parsed TimeOfDay
	require.NoError(t, parsed.UnmarshalJSON([]byte(`"14:05"`)))
	assert.Equal(t, TimeOfDay{Hour: 14, Minute: 5}, parsed)
}

func TestProjectOrderPublicStripsQR(t *testing.T) {
	order := Order{
		ID:         7,
		QRCode:     "secret",
		QRExpireAt: time.Now(),
		Status:     StatusPending,
	}
	public := ProjectOrderPublic(order)
	assert.Empty(t, public.QRCode)
	assert.True(t, public.QRExpireAt.IsZero())

	private := ProjectOrder(order)
	assert.Equal(t, "secret", private.QRCode)
}
