package identity_test

import (
	"testing"

	"github.com/okian/steamwatch/internal/domain/identity"
	"github.com/okian/steamwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestHash(t *testing.T) {
	Convey("Given an inventory item", t, func() {
		item := model.Item{AssetID: "30012345678", ClassID: "310776668", InstanceID: "480085569"}

		Convey("When hashing an item with equal identity fields", func() {
			other := item
			other.Amount = "5"

			Convey("Then the hashes are equal and fixed length", func() {
				So(identity.Hash(item), ShouldEqual, identity.Hash(other))
				So(len(identity.Hash(item)), ShouldEqual, identity.HashLen)
			})
		})

		Convey("When any single identity field differs", func() {
			byAsset := item
			byAsset.AssetID = "30012345679"
			byClass := item
			byClass.ClassID = "310776669"
			byInstance := item
			byInstance.InstanceID = "0"

			Convey("Then the hash differs", func() {
				h := identity.Hash(item)
				So(identity.Hash(byAsset), ShouldNotEqual, h)
				So(identity.Hash(byClass), ShouldNotEqual, h)
				So(identity.Hash(byInstance), ShouldNotEqual, h)
			})
		})

		Convey("When field boundaries shift", func() {
			a := model.Item{AssetID: "12", ClassID: "3", InstanceID: ""}
			b := model.Item{AssetID: "1", ClassID: "23", InstanceID: ""}

			Convey("Then the hashes do not collide", func() {
				So(identity.Hash(a), ShouldNotEqual, identity.Hash(b))
			})
		})

		Convey("When fields are missing", func() {
			Convey("Then hashing still succeeds deterministically", func() {
				So(identity.Hash(model.Item{}), ShouldEqual, identity.Hash(model.Item{}))
				So(identity.Hash(model.Item{ClassID: "1"}), ShouldNotEqual, identity.Hash(model.Item{}))
			})
		})
	})
}

func TestSet(t *testing.T) {
	Convey("Given two hash sets", t, func() {
		current := identity.NewSet("a", "b", "c", "d")
		known := identity.NewSet("a", "b", "c")

		Convey("When subtracting known from current", func() {
			diff := current.Minus(known)

			Convey("Then only the unseen hash remains", func() {
				So(diff, ShouldResemble, identity.NewSet("d"))
				So(diff.Has("d"), ShouldBeTrue)
				So(diff.Has("a"), ShouldBeFalse)
			})
		})

		Convey("When building a set from items", func() {
			items := []model.Item{{AssetID: "1"}, {AssetID: "1"}, {AssetID: "2"}}

			Convey("Then duplicates collapse", func() {
				So(len(identity.Of(items)), ShouldEqual, 2)
				So(len(identity.Of(items).Slice()), ShouldEqual, 2)
			})
		})
	})
}
