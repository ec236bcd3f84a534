package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zmnix/keygate/internal/models"
)

func TestStatusOf(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	days := func(n int) time.Time { return now.AddDate(0, 0, n) }

	tests := []struct {
		name string
		lic  models.License
		want Status
	}{
		{
			name: "suspended wins over everything",
			lic: models.License{
				Suspended:      true,
				ExpirationType: models.ExpirationTypeDate,
				ExpirationDate: ptrTime(days(-31)),
				LastActiveAt:   days(-100),
			},
			want: StatusSuspended,
		},
		{
			name: "date license past expiration",
			lic: models.License{
				ExpirationType: models.ExpirationTypeDate,
				ExpirationDate: ptrTime(days(-31)),
				LastActiveAt:   now,
			},
			want: StatusExpired,
		},
		{
			name: "date license ten days before expiration",
			lic: models.License{
				ExpirationType: models.ExpirationTypeDate,
				ExpirationDate: ptrTime(days(10)),
				LastActiveAt:   now,
			},
			want: StatusExpiring,
		},
		{
			name: "date license far from expiration and recently active",
			lic: models.License{
				ExpirationType: models.ExpirationTypeDate,
				ExpirationDate: ptrTime(days(90)),
				LastActiveAt:   days(-1),
			},
			want: StatusActive,
		},
		{
			name: "date license far from expiration but dormant",
			lic: models.License{
				ExpirationType: models.ExpirationTypeDate,
				ExpirationDate: ptrTime(days(90)),
				LastActiveAt:   days(-40),
			},
			want: StatusInactive,
		},
		{
			name: "duration license with started countdown past the date",
			lic: models.License{
				ExpirationType:  models.ExpirationTypeDuration,
				ExpirationStart: models.ExpirationStartActivation,
				ExpirationDate:  ptrTime(days(-1)),
				LastActiveAt:    now,
			},
			want: StatusExpired,
		},
		{
			name: "duration license with started countdown inside the window",
			lic: models.License{
				ExpirationType:  models.ExpirationTypeDuration,
				ExpirationStart: models.ExpirationStartActivation,
				ExpirationDate:  ptrTime(days(5)),
				LastActiveAt:    now,
			},
			want: StatusExpiring,
		},
		{
			name: "duration license not yet activated stays active",
			lic: models.License{
				ExpirationType:  models.ExpirationTypeDuration,
				ExpirationStart: models.ExpirationStartActivation,
				ExpirationDays:  ptrInt(30),
				LastActiveAt:    now,
			},
			want: StatusActive,
		},
		{
			name: "never-expiring license seen forty days ago",
			lic: models.License{
				ExpirationType: models.ExpirationTypeNever,
				LastActiveAt:   days(-40),
			},
			want: StatusInactive,
		},
		{
			name: "never-expiring license freshly active",
			lic: models.License{
				ExpirationType: models.ExpirationTypeNever,
				LastActiveAt:   now,
			},
			want: StatusActive,
		},
		{
			name: "expired beats inactive",
			lic: models.License{
				ExpirationType: models.ExpirationTypeDate,
				ExpirationDate: ptrTime(days(-1)),
				LastActiveAt:   days(-100),
			},
			want: StatusExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(&tt.lic, now))
		})
	}
}

func TestStatusUsable(t *testing.T) {
	assert.True(t, StatusActive.Usable())
	assert.True(t, StatusExpiring.Usable())
	assert.False(t, StatusInactive.Usable())
	assert.False(t, StatusExpired.Usable())
	assert.False(t, StatusSuspended.Usable())
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrInt(n int) *int              { return &n }
