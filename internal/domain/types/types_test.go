package types_test

import (
	"encoding/json"
	"testing"
	"time"

	types "github.com/okian/steamwatch/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTargetStatusJSON(t *testing.T) {
	Convey("Given a failing target status", t, func() {
		checked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		status := types.TargetStatus{
			AccountID:           "76561199109461098",
			GameID:              730,
			ContextID:           2,
			LastCheckedAt:       checked,
			LastError:           "private inventory",
			LastErrorKind:       "private",
			ConsecutiveFailures: 3,
		}

		Convey("When encoding it for the admin API", func() {
			raw, err := json.Marshal(status)
			So(err, ShouldBeNil)

			var decoded map[string]any
			So(json.Unmarshal(raw, &decoded), ShouldBeNil)

			Convey("Then field names follow the API contract", func() {
				So(decoded["account_id"], ShouldEqual, "76561199109461098")
				So(decoded["app_id"], ShouldEqual, 730)
				So(decoded["last_error_kind"], ShouldEqual, "private")
				So(decoded["consecutive_failures"], ShouldEqual, 3)
			})
		})
	})
}
