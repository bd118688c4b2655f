package integration_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("task lifecycle", func() {
	It("creates a task, rejects a double claim, and lists sessions", func() {
		resp, err := client.Call(1, "task.add", map[string]any{
			"title": "fix bug", "repoPath": "/repo", "taskType": "fix",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Error).To(BeNil())

		task := resp.Result.(map[string]any)
		taskID := task["id"].(string)
		Expect(taskID).NotTo(BeEmpty())

		resp, err = client.Call(2, "task.claim", map[string]any{"taskId": taskID, "agentId": "agent-1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Error).To(BeNil())

		resp, err = client.Call(3, "task.claim", map[string]any{"taskId": taskID, "agentId": "agent-2"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Error).NotTo(BeNil(), "a second agent claiming an already-claimed task should conflict")

		resp, err = client.Call(4, "task.get", map[string]any{"id": taskID})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Error).To(BeNil())
		got := resp.Result.(map[string]any)
		Expect(got["status"]).To(Equal("claimed"))

		resp, err = client.Call(5, "session.create", map[string]any{
			"provider": "claude", "repoPath": "/repo", "title": "working the bug",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Error).To(BeNil())

		resp, err = client.Call(6, "session.list", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Error).To(BeNil())
		sessions, ok := resp.Result.([]any)
		Expect(ok).To(BeTrue())
		Expect(sessions).To(HaveLen(1))
	})

	It("reports healthy over plain HTTP", func() {
		httpClient := testServer.HTTP.Client()
		res, err := httpClient.Get(testServer.HTTP.URL + "/health")
		Expect(err).NotTo(HaveOccurred())
		defer res.Body.Close()
		Expect(res.StatusCode).To(Equal(200))
	})
})
