package capture

import (
	"context"
	"net/http"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

func TestCapture(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Capture Suite")
}

var _ = Describe("SnapshotCamera", func() {
	var (
		server *ghttp.Server
		camera *SnapshotCamera
		jpeg   http.Header
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		camera = NewSnapshotCamera(server.URL() + "/shot.jpg")
		jpeg = http.Header{"Content-Type": []string{"image/jpeg"}}
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Open", func() {
		When("the camera answers", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("GET", "/shot.jpg"),
					ghttp.RespondWith(http.StatusOK, "probe", jpeg),
				))
			})

			It("returns a stream", func() {
				stream, err := camera.Open(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(stream).NotTo(BeNil())
			})
		})

		When("the camera refuses access", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusForbidden, ""))
			})

			It("returns ErrDenied", func() {
				_, err := camera.Open(context.Background())
				Expect(err).To(MatchError(ErrDenied))
			})
		})

		When("the camera is unreachable", func() {
			It("returns ErrUnavailable", func() {
				server.Close()
				_, err := camera.Open(context.Background())
				Expect(err).To(MatchError(ErrUnavailable))
			})
		})

		When("the endpoint does not serve images", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "<html></html>",
					http.Header{"Content-Type": []string{"text/html"}}))
			})

			It("returns ErrUnavailable", func() {
				_, err := camera.Open(context.Background())
				Expect(err).To(MatchError(ErrUnavailable))
			})
		})
	})

	Describe("Stream", func() {
		var stream Stream

		BeforeEach(func() {
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusOK, "probe", jpeg),
				ghttp.RespondWith(http.StatusOK, "frame-bytes", jpeg),
			)
			var err error
			stream, err = camera.Open(context.Background())
			Expect(err).NotTo(HaveOccurred())
		})

		It("snapshots the current frame", func() {
			img, err := stream.Frame(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(string(img.Data)).To(Equal("frame-bytes"))
			Expect(img.ContentType).To(Equal("image/jpeg"))
		})

		It("refuses frames after Stop", func() {
			Expect(stream.Stop()).To(Succeed())
			_, err := stream.Frame(context.Background())
			Expect(err).To(MatchError(ErrStopped))
		})

		It("tolerates repeated Stop", func() {
			Expect(stream.Stop()).To(Succeed())
			Expect(stream.Stop()).To(Succeed())
		})
	})

	Describe("Stop during a snapshot", func() {
		var (
			stream  Stream
			arrived chan struct{}
		)

		BeforeEach(func() {
			arrived = make(chan struct{})
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusOK, "probe", jpeg),
				func(w http.ResponseWriter, r *http.Request) {
					close(arrived)
					<-r.Context().Done()
				},
			)
			var err error
			stream, err = camera.Open(context.Background())
			Expect(err).NotTo(HaveOccurred())
		})

		It("aborts the request and returns ErrStopped", func() {
			done := make(chan error, 1)
			go func() {
				_, err := stream.Frame(context.Background())
				done <- err
			}()

			Eventually(arrived).Should(BeClosed())
			Expect(stream.Stop()).To(Succeed())
			Eventually(done).Should(Receive(MatchError(ErrStopped)))
		})
	})
})
