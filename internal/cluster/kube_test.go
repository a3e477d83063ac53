package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	zerrors "github.com/zzenonn/zraid/internal/errors"
)

func testNode(name string, ready corev1.ConditionStatus, labels map[string]string) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{{Type: corev1.NodeReady, Status: ready}},
		},
	}
}

func testPod(namespace, name, node string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
		Spec:       corev1.PodSpec{NodeName: node},
	}
}

func TestKubeClient_ListNodes(t *testing.T) {
	worker := map[string]string{"role": "worker"}
	cs := fake.NewSimpleClientset(
		testNode("node-1", corev1.ConditionTrue, worker),
		testNode("node-2", corev1.ConditionFalse, worker),
		testNode("control", corev1.ConditionTrue, map[string]string{"role": "control-plane"}),
	)
	c := NewKubeClientFromClientset(cs)

	nodes, err := c.ListNodes(context.Background(), "role=worker")
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	ready := map[string]bool{}
	for _, n := range nodes {
		ready[n.Name] = n.Ready
	}
	assert.True(t, ready["node-1"])
	assert.False(t, ready["node-2"])
}

func TestKubeClient_SetUnschedulable(t *testing.T) {
	ctx := context.Background()
	cs := fake.NewSimpleClientset(testNode("node-1", corev1.ConditionTrue, nil))
	c := NewKubeClientFromClientset(cs)

	require.NoError(t, c.SetUnschedulable(ctx, "node-1", true))
	n, err := cs.CoreV1().Nodes().Get(ctx, "node-1", metav1.GetOptions{})
	require.NoError(t, err)
	assert.True(t, n.Spec.Unschedulable)

	require.NoError(t, c.SetUnschedulable(ctx, "node-1", false))
	n, err = cs.CoreV1().Nodes().Get(ctx, "node-1", metav1.GetOptions{})
	require.NoError(t, err)
	assert.False(t, n.Spec.Unschedulable)

	err = c.SetUnschedulable(ctx, "ghost", true)
	var ce *zerrors.CollaboratorError
	assert.True(t, errors.As(err, &ce), "expected CollaboratorError, got %v", err)
}

func TestKubeClient_PodsOnNode(t *testing.T) {
	ctx := context.Background()
	cs := fake.NewSimpleClientset(
		testPod("cloud-storage", "storage-0", "node-1"),
		testPod("kube-system", "kube-proxy-a", "node-1"),
		testPod("cloud-storage", "storage-1", "node-2"),
	)
	c := NewKubeClientFromClientset(cs)

	pods, err := c.ListPodsOnNode(ctx, "node-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []PodRef{
		{Namespace: "cloud-storage", Name: "storage-0"},
		{Namespace: "kube-system", Name: "kube-proxy-a"},
	}, pods)

	require.NoError(t, c.DeletePod(ctx, "cloud-storage", "storage-0"))
	require.NoError(t, c.DeletePod(ctx, "cloud-storage", "storage-0"), "deleting a missing pod is not an error")

	pods, err = c.ListPodsOnNode(ctx, "node-1")
	require.NoError(t, err)
	assert.Equal(t, []PodRef{{Namespace: "kube-system", Name: "kube-proxy-a"}}, pods)
}

func TestKubeClient_ListError(t *testing.T) {
	cs := fake.NewSimpleClientset()
	cs.PrependReactor("list", "nodes", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("api server unavailable")
	})
	c := NewKubeClientFromClientset(cs)

	_, err := c.ListNodes(context.Background(), "")
	var ce *zerrors.CollaboratorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "list nodes", ce.Op)
}

func TestKubeClient_ListPods(t *testing.T) {
	running := testPod("cloud-storage", "storage-0", "node-1")
	running.Status = corev1.PodStatus{
		Phase:             corev1.PodRunning,
		ContainerStatuses: []corev1.ContainerStatus{{Name: "storage", RestartCount: 3}},
	}
	pending := testPod("cloud-storage", "storage-1", "node-2")
	pending.Status = corev1.PodStatus{Phase: corev1.PodPending}

	cs := fake.NewSimpleClientset(running, pending, testPod("kube-system", "kube-proxy-a", "node-1"))
	c := NewKubeClientFromClientset(cs)

	pods, err := c.ListPods(context.Background(), "cloud-storage")
	require.NoError(t, err)
	assert.ElementsMatch(t, []PodStatus{
		{Namespace: "cloud-storage", Name: "storage-0", Node: "node-1", Phase: "Running", Restarts: 3},
		{Namespace: "cloud-storage", Name: "storage-1", Node: "node-2", Phase: "Pending"},
	}, pods)
}
