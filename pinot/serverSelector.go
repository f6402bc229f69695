package pinot

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	zk "github.com/go-zookeeper/zk"

	log "github.com/sirupsen/logrus"
)

const segmentExternalViewPathPrefix = "EXTERNALVIEW"

// ReadZNode reads one ZNode's content.
type ReadZNode func(path string) ([]byte, error)

// DynamicServerSelector watches a table's segment external view in
// Zookeeper and maps segments to the ONLINE servers hosting them, producing
// scan splits grouped by server. One selector serves one table.
type DynamicServerSelector struct {
	zkConfig               *ZookeeperConfig
	table                  string
	zkConn                 *zk.Conn
	externalViewZnodeWatch <-chan zk.Event
	readZNode              ReadZNode
	externalViewZkPath     string
	segmentServerMap       map[string][]string
	rwMux                  sync.RWMutex
}

type externalView struct {
	SimpleFields map[string]string              `json:"simpleFields"`
	MapFields    map[string](map[string]string) `json:"mapFields"`
	ListFields   map[string]([]string)          `json:"listFields"`
	ID           string                         `json:"id"`
}

// NewDynamicServerSelector builds a selector for one table. Call Init before
// use.
func NewDynamicServerSelector(zkConfig *ZookeeperConfig, table string) *DynamicServerSelector {
	return &DynamicServerSelector{
		zkConfig: zkConfig,
		table:    table,
	}
}

// Init connects to Zookeeper, loads the external view and keeps it fresh
// through a watch.
func (s *DynamicServerSelector) Init() error {
	var err error
	s.zkConn, _, err = zk.Connect(s.zkConfig.ZookeeperPath, time.Duration(s.zkConfig.SessionTimeoutSec)*time.Second)
	if err != nil {
		log.Errorf("Failed to connect to zookeeper: %v\n", s.zkConfig.ZookeeperPath)
		return err
	}
	s.readZNode = func(path string) ([]byte, error) {
		if s.zkConn == nil {
			return nil, fmt.Errorf("zk connection hasn't been initialized")
		}
		node, _, err := s.zkConn.Get(path)
		if err != nil {
			log.Errorf("Failed to read zk: %s, ExternalView path: %s\n", s.zkConfig.ZookeeperPath, path)
			return nil, err
		}
		return node, nil
	}
	s.externalViewZkPath = strings.Join([]string{s.zkConfig.PathPrefix, segmentExternalViewPathPrefix, s.table}, "/")
	_, _, s.externalViewZnodeWatch, err = s.zkConn.GetW(s.externalViewZkPath)
	if err != nil {
		log.Errorf("Failed to set a watcher on ExternalView path: %s, Error: %v\n", s.externalViewZkPath, err)
		return err
	}
	if err = s.refreshExternalView(); err != nil {
		return err
	}
	go s.setupWatcher()
	return nil
}

// Close releases the Zookeeper connection.
func (s *DynamicServerSelector) Close() {
	if s.zkConn != nil {
		s.zkConn.Close()
	}
}

func (s *DynamicServerSelector) setupWatcher() {
	for ev := range s.externalViewZnodeWatch {
		if ev.Err != nil {
			log.Error("GetW watcher error", ev.Err)
		} else if ev.Type == zk.EventNodeDataChanged {
			if err := s.refreshExternalView(); err != nil {
				log.Errorf("Failed to refresh ExternalView: %v\n", err)
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (s *DynamicServerSelector) refreshExternalView() error {
	if s.readZNode == nil {
		return fmt.Errorf("no method defined to read from a ZNode")
	}
	node, err := s.readZNode(s.externalViewZkPath)
	if err != nil {
		return err
	}
	ev, err := getExternalView(node)
	if err != nil {
		return err
	}
	newSegmentServerMap := generateSegmentServerMapping(ev)
	s.rwMux.Lock()
	s.segmentServerMap = newSegmentServerMap
	s.rwMux.Unlock()
	return nil
}

// GenerateSplits assigns every segment to one of its ONLINE servers and
// groups the assignments into per-server splits.
func (s *DynamicServerSelector) GenerateSplits() ([]*PinotSplit, error) {
	s.rwMux.RLock()
	defer s.rwMux.RUnlock()
	if len(s.segmentServerMap) == 0 {
		return nil, fmt.Errorf("no segments found for table: %s", s.table)
	}
	segmentsByServer := map[string][]string{}
	for segment, servers := range s.segmentServerMap {
		if len(servers) == 0 {
			return nil, fmt.Errorf("no online server found for segment: %s", segment)
		}
		server := servers[rand.Intn(len(servers))]
		segmentsByServer[server] = append(segmentsByServer[server], segment)
	}
	serverKeys := make([]string, 0, len(segmentsByServer))
	for server := range segmentsByServer {
		serverKeys = append(serverKeys, server)
	}
	sort.Strings(serverKeys)
	splits := make([]*PinotSplit, 0, len(serverKeys))
	for _, server := range serverKeys {
		host, portValue, err := extractServerHostPort(server)
		if err != nil {
			return nil, err
		}
		port, _ := strconv.Atoi(portValue)
		segments := segmentsByServer[server]
		sort.Strings(segments)
		splits = append(splits, &PinotSplit{
			Host:     host,
			GrpcPort: port,
			Segments: segments,
		})
	}
	return splits, nil
}

func getExternalView(evBytes []byte) (*externalView, error) {
	var ev externalView
	if err := json.Unmarshal(evBytes, &ev); err != nil {
		log.Errorf("Failed to unmarshal ExternalView: %s, Error: %v\n", evBytes, err)
		return nil, err
	}
	return &ev, nil
}

func generateSegmentServerMapping(ev *externalView) map[string][]string {
	segmentServerMap := map[string][]string{}
	for segment, serverMapping := range ev.MapFields {
		segmentServerMap[segment] = extractOnlineServers(serverMapping)
	}
	return segmentServerMap
}

func extractOnlineServers(serverMap map[string]string) []string {
	serverList := []string{}
	for serverName, status := range serverMap {
		if status == "ONLINE" {
			if _, _, err := extractServerHostPort(serverName); err == nil {
				serverList = append(serverList, serverName)
			}
		}
	}
	sort.Strings(serverList)
	return serverList
}

func extractServerHostPort(serverKey string) (string, string, error) {
	splits := strings.Split(serverKey, "_")
	if len(splits) < 2 {
		err := fmt.Errorf("invalid server key: %s, should be in the format of Server_[hostname]_[port]", serverKey)
		log.Error(err)
		return "", "", err
	}
	_, err := strconv.Atoi(splits[len(splits)-1])
	if err != nil {
		log.Errorf("Failed to parse server port:%s to integer", splits[len(splits)-1])
		return "", "", err
	}
	return splits[len(splits)-2], splits[len(splits)-1], nil
}
