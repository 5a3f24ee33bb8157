package fastview

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

func text(id, value string) EleUpdate {
	return EleUpdate{EleId: id, Ops: []Op{{Key: "textContent", Value: value}}}
}

func TestCoalesce(t *testing.T) {
	Convey("Later updates replace earlier ones per element", t, func() {
		merged := Coalesce(
			[]EleUpdate{text("a", "1"), text("b", "1")},
			[]EleUpdate{text("c", "2"), text("a", "2")},
		)
		So(merged, ShouldResemble, []EleUpdate{text("a", "2"), text("b", "1"), text("c", "2")})
	})

	Convey("Duplicates within one batch keep the last", t, func() {
		merged := Coalesce(nil, []EleUpdate{text("a", "1"), text("a", "3")})
		So(merged, ShouldResemble, []EleUpdate{text("a", "3")})
	})
}

func TestClientSync(t *testing.T) {
	Convey("Given a page attached to a client", t, func() {
		updates := make(chan []EleUpdate)
		synced := make(chan error, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cli, err := NewClient(updates, Coalesce, w, r)
			if err != nil {
				synced <- err
				return
			}
			synced <- cli.Sync()
		}))
		defer srv.Close()

		page, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
		So(err, ShouldBeNil)
		defer page.Close()

		Convey("A burst of updates arrives as one coalesced message", func() {
			updates <- []EleUpdate{text("a", "1")}
			updates <- []EleUpdate{text("a", "2"), text("b", "2")}
			updates <- []EleUpdate{text("b", "3")}

			So(page.SetReadDeadline(time.Now().Add(5*time.Second)), ShouldBeNil)
			var got []EleUpdate
			So(page.ReadJSON(&got), ShouldBeNil)
			So(got, ShouldResemble, []EleUpdate{text("a", "2"), text("b", "3")})

			Convey("Closing the updates ends Sync cleanly", func() {
				close(updates)
				select {
				case err := <-synced:
					So(err, ShouldBeNil)
				case <-time.After(5 * time.Second):
					So("timed out", ShouldBeEmpty)
				}
			})
		})
	})
}
