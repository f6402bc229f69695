package pinot

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testExternalView = `{
	"id": "myTable_OFFLINE",
	"simpleFields": {"REBALANCE_MODE": "CUSTOMIZED"},
	"mapFields": {
		"segment1": {"Server_server-1_8090": "ONLINE"},
		"segment2": {"Server_server-1_8090": "ONLINE"},
		"segment3": {"Server_server-2_8090": "ONLINE", "Server_server-3_8090": "OFFLINE"}
	},
	"listFields": {}
}`

func TestExtractServerHostPort(t *testing.T) {
	host, port, err := extractServerHostPort("Server_server-1_8090")
	assert.Nil(t, err)
	assert.Equal(t, "server-1", host)
	assert.Equal(t, "8090", port)
	_, _, err = extractServerHostPort("server-1:8090")
	assert.NotNil(t, err)
	_, _, err = extractServerHostPort("Server_server-1_aaa")
	assert.NotNil(t, err)
}

func TestExtractOnlineServers(t *testing.T) {
	servers := extractOnlineServers(map[string]string{
		"Server_server-1_8090": "ONLINE",
		"Server_server-2_8090": "OFFLINE",
		"Server_bogus":         "ONLINE",
	})
	assert.Equal(t, []string{"Server_server-1_8090"}, servers)
}

func TestSegmentExternalViewUpdate(t *testing.T) {
	ev, err := getExternalView([]byte(testExternalView))
	require.NoError(t, err)
	assert.Equal(t, "myTable_OFFLINE", ev.ID)
	assert.Equal(t, 3, len(ev.MapFields))

	segmentServerMap := generateSegmentServerMapping(ev)
	assert.Equal(t, []string{"Server_server-1_8090"}, segmentServerMap["segment1"])
	assert.Equal(t, []string{"Server_server-2_8090"}, segmentServerMap["segment3"])
}

func TestInvalidExternalView(t *testing.T) {
	_, err := getExternalView([]byte("not json"))
	assert.NotNil(t, err)
}

func TestGenerateSplits(t *testing.T) {
	selector := NewDynamicServerSelector(&ZookeeperConfig{}, "myTable")
	selector.readZNode = func(path string) ([]byte, error) {
		return []byte(testExternalView), nil
	}
	require.NoError(t, selector.refreshExternalView())

	splits, err := selector.GenerateSplits()
	require.NoError(t, err)
	require.Equal(t, 2, len(splits))

	assert.Equal(t, "server-1", splits[0].Host)
	assert.Equal(t, 8090, splits[0].GrpcPort)
	assert.Equal(t, []string{"segment1", "segment2"}, splits[0].Segments)

	assert.Equal(t, "server-2", splits[1].Host)
	assert.Equal(t, []string{"segment3"}, splits[1].Segments)
}

func TestGenerateSplitsNoSegments(t *testing.T) {
	selector := NewDynamicServerSelector(&ZookeeperConfig{}, "myTable")
	selector.readZNode = func(path string) ([]byte, error) {
		return []byte(`{"id":"myTable_OFFLINE","mapFields":{}}`), nil
	}
	require.NoError(t, selector.refreshExternalView())
	_, err := selector.GenerateSplits()
	assert.NotNil(t, err)
}

func TestGenerateSplitsNoOnlineServer(t *testing.T) {
	selector := NewDynamicServerSelector(&ZookeeperConfig{}, "myTable")
	selector.readZNode = func(path string) ([]byte, error) {
		return []byte(`{"id":"myTable_OFFLINE","mapFields":{"segment1":{"Server_server-1_8090":"OFFLINE"}}}`), nil
	}
	require.NoError(t, selector.refreshExternalView())
	_, err := selector.GenerateSplits()
	assert.NotNil(t, err)
}

func TestRefreshExternalViewErrors(t *testing.T) {
	selector := NewDynamicServerSelector(&ZookeeperConfig{ZookeeperPath: []string{}}, "myTable")
	err := selector.refreshExternalView()
	assert.NotNil(t, err)

	selector.readZNode = func(path string) ([]byte, error) {
		return nil, fmt.Errorf("zk unavailable")
	}
	err = selector.refreshExternalView()
	assert.NotNil(t, err)
}

func TestSelectorErrorInit(t *testing.T) {
	selector := NewDynamicServerSelector(&ZookeeperConfig{ZookeeperPath: []string{}}, "myTable")
	err := selector.Init()
	assert.NotNil(t, err)
}
