package delivery

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"testing/fstest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

func TestDelivery(t *testing.T) {
	// Disable logging during tests
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Delivery Suite")
}

const testIndex = `<!DOCTYPE html><html><head><title>Receipt Scanner</title></head><body>scan</body></html>`

// failingFS is an fs.FS whose every open fails with err
type failingFS struct {
	err error
}

func (f failingFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: f.err}
}

var _ = Describe("Server", func() {
	var (
		files       fs.FS
		secret      string
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		files = fstest.MapFS{
			"index.html":    {Data: []byte(testIndex)},
			"app.js":        {Data: []byte("console.log('</head>');\n")},
			"app.css":       {Data: []byte("body { margin: 0; }")},
			"logo.png":      {Data: []byte{0x89, 'P', 'N', 'G'}},
			"data.bin":      {Data: []byte{0x00, 0x01}},
			"static/x.json": {Data: []byte(`{"a":1}`)},
		}
		secret = "sk-test-123"
	})

	JustBeforeEach(func() {
		server := NewServerWithMux(files, secret, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	get := func(p string) (*http.Response, string) {
		resp, err := http.Get(ghttpServer.URL() + p)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, string(body)
	}

	Describe("the default document", func() {
		It("is served for / with exactly one injected script", func() {
			resp, body := get("/")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/html"))
			Expect(strings.Count(body, "<script>window.OPENAI_API_KEY")).To(Equal(1))
			Expect(body).To(ContainSubstring(`<script>window.OPENAI_API_KEY = "sk-test-123";</script></head>`))
		})

		It("is served for unknown paths with 200", func() {
			resp, body := get("/missing.xyz")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/html"))
			Expect(body).To(ContainSubstring("<title>Receipt Scanner</title>"))
			Expect(body).To(ContainSubstring("window.OPENAI_API_KEY"))
		})

		It("is served for directories", func() {
			resp, body := get("/static/")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring("<title>Receipt Scanner</title>"))
		})
	})

	Describe("assets", func() {
		It("returns scripts byte for byte", func() {
			resp, body := get("/app.js")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/javascript"))
			Expect(body).To(Equal("console.log('</head>');\n"))
		})

		It("serves nested files with their content type", func() {
			resp, body := get("/static/x.json")
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(body).To(Equal(`{"a":1}`))
		})

		It("falls back to octet-stream for unknown extensions", func() {
			resp, _ := get("/data.bin")
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/octet-stream"))
		})
	})

	When("the secret contains markup", func() {
		BeforeEach(func() {
			secret = `</script><script>alert(1)</script>`
		})

		It("cannot close the script element", func() {
			_, body := get("/")
			Expect(strings.Count(body, "</script>")).To(Equal(1))
			Expect(body).To(ContainSubstring(`\u003c/script\u003e`))
		})
	})

	When("the document has no head close tag", func() {
		BeforeEach(func() {
			files = fstest.MapFS{
				"index.html": {Data: []byte("<html><body>bare</body></html>")},
			}
		})

		It("serves it without injection", func() {
			resp, body := get("/")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(Equal("<html><body>bare</body></html>"))
		})
	})

	When("the default document is missing", func() {
		BeforeEach(func() {
			files = fstest.MapFS{
				"app.js": {Data: []byte("x")},
			}
		})

		It("returns a server error naming the code", func() {
			resp, body := get("/nothing-here")
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(body).To(Equal("Server Error: ENOENT"))
		})
	})

	When("the files are unreadable", func() {
		BeforeEach(func() {
			files = failingFS{err: fs.ErrPermission}
		})

		It("returns a server error naming the code", func() {
			resp, body := get("/app.js")
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(body).To(Equal("Server Error: EACCES"))
		})
	})

	When("the method is not GET", func() {
		It("serves the file all the same", func() {
			req, err := http.NewRequest("POST", ghttpServer.URL()+"/app.css", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("body { margin: 0; }"))
		})
	})

	When("the method is HEAD", func() {
		It("returns headers without a body", func() {
			resp, err := http.Head(ghttpServer.URL() + "/app.css")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/css"))
		})
	})
})

var _ = Describe("ContentType", func() {
	DescribeTable("maps extensions",
		func(name, want string) {
			Expect(ContentType(name)).To(Equal(want))
		},
		Entry("html", "index.html", "text/html"),
		Entry("css", "app.css", "text/css"),
		Entry("js", "app.js", "text/javascript"),
		Entry("json", "a.json", "application/json"),
		Entry("png", "a.png", "image/png"),
		Entry("jpg", "a.jpg", "image/jpeg"),
		Entry("jpeg", "a.JPEG", "image/jpeg"),
		Entry("gif", "a.gif", "image/gif"),
		Entry("svg", "a.svg", "image/svg+xml"),
		Entry("ico", "favicon.ico", "image/x-icon"),
		Entry("unknown", "a.wasm", "application/octet-stream"),
		Entry("none", "README", "application/octet-stream"),
	)
})

var _ = Describe("errorCode", func() {
	It("classifies read failures", func() {
		Expect(errorCode(fs.ErrNotExist)).To(Equal("ENOENT"))
		Expect(errorCode(&fs.PathError{Op: "open", Path: "x", Err: fs.ErrPermission})).To(Equal("EACCES"))
		Expect(errorCode(errIsDir)).To(Equal("EISDIR"))
		Expect(errorCode(errors.New("disk failure"))).To(Equal("EIO"))
	})
})

var _ = Describe("DefaultFiles", func() {
	It("embeds the scanner page with a head to inject into", func() {
		data, err := fs.ReadFile(DefaultFiles(), DefaultDocument)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("</head>"))

		_, err = fs.Stat(DefaultFiles(), "app.js")
		Expect(err).NotTo(HaveOccurred())
	})
})
