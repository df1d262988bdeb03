package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/okian/steamwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type sentMessage struct {
	chatID int64
	text   string
	opts   MessageOptions
}

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string, opts MessageOptions) (int, error) {
	f.sent = append(f.sent, sentMessage{chatID, text, opts})
	return len(f.sent), f.err
}

func itemsNamed(n int) []model.NewItem {
	out := make([]model.NewItem, n)
	for i := range out {
		out[i] = model.NewItem{Item: model.Item{AssetID: fmt.Sprint(i), ClassID: "c"}, DisplayName: fmt.Sprintf("Item %d", i)}
	}
	return out
}

func TestFormatNewItems(t *testing.T) {
	Convey("Given new items for a CS2 inventory", t, func() {
		Convey("When there are fewer items than the cap", func() {
			text := FormatNewItems("76561199109461098", 730, itemsNamed(3), 10)

			Convey("Then every name is listed and nothing is truncated", func() {
				So(text, ShouldContainSubstring, "`76561199109461098`")
				So(text, ShouldContainSubstring, "CS2")
				So(strings.Count(text, "• "), ShouldEqual, 3)
				So(text, ShouldNotContainSubstring, "more")
			})
		})

		Convey("When there are more items than the cap", func() {
			text := FormatNewItems("76561199109461098", 730, itemsNamed(13), 10)

			Convey("Then ten names and the remainder count are shown", func() {
				So(strings.Count(text, "• "), ShouldEqual, 10)
				So(text, ShouldContainSubstring, "Item 9")
				So(text, ShouldNotContainSubstring, "Item 10")
				So(text, ShouldEndWith, "_... and 3 more_")
			})
		})

		Convey("When names contain markup characters", func() {
			items := []model.NewItem{{DisplayName: "Sticker | *Holo*_[Foil]"}, {Item: model.Item{ClassID: "99"}}}
			text := FormatNewItems("1", 252490, items, 10)

			Convey("Then they are escaped and missing names fall back to the class id", func() {
				So(text, ShouldContainSubstring, `Sticker | \*Holo\*\_\[Foil]`)
				So(text, ShouldContainSubstring, "Item #99")
				So(text, ShouldContainSubstring, "Rust")
			})
		})
	})
}

func TestGameName(t *testing.T) {
	cases := map[int64]string{730: "CS2", 570: "Dota 2", 440: "TF2", 252490: "Rust", 753: "AppID:753"}
	for appID, want := range cases {
		if got := GameName(appID); got != want {
			t.Errorf("GameName(%d) = %q, want %q", appID, got, want)
		}
	}
}

func TestNotifierNotify(t *testing.T) {
	Convey("Given a notifier", t, func() {
		sender := &fakeSender{}
		n := NewNotifier(sender, 0)

		Convey("When items are delivered", func() {
			err := n.Notify(context.Background(), 42, "7656", 570, itemsNamed(2))

			Convey("Then one Markdown message goes to the watcher's chat", func() {
				So(err, ShouldBeNil)
				So(len(sender.sent), ShouldEqual, 1)
				So(sender.sent[0].chatID, ShouldEqual, 42)
				So(sender.sent[0].opts.ParseMode, ShouldEqual, ParseModeMarkdown)
				So(sender.sent[0].text, ShouldContainSubstring, "Dota 2")
			})
		})

		Convey("When there is nothing to deliver", func() {
			So(n.Notify(context.Background(), 42, "7656", 570, nil), ShouldBeNil)
			So(sender.sent, ShouldBeEmpty)
		})

		Convey("When the send fails", func() {
			sender.err = errors.New("Forbidden: bot was blocked by the user")
			err := n.Notify(context.Background(), 42, "7656", 570, itemsNamed(1))

			Convey("Then the error names the watcher", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "watcher 42")
			})
		})
	})
}
