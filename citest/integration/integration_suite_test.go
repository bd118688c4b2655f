package integration_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/joho/godotenv"

	"github.com/clawd-io/clawd/citest/testutil"
)

var (
	testServer *testutil.TestServer
	client     *testutil.TestClient
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Integration Suite")
}

var _ = BeforeSuite(func() {
	// Optional local overrides (e.g. a longer approval timeout); absent in CI.
	_ = godotenv.Load("../../.env")

	var err error
	testServer, err = testutil.StartTestServer()
	Expect(err).NotTo(HaveOccurred(), "failed to start test server")

	client = testServer.Client()
})

var _ = AfterSuite(func() {
	if client != nil {
		_ = client.Close()
	}
	if testServer != nil {
		testServer.Stop()
	}
})
