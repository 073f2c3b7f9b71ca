package hub

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Map is a generic, JSON/YAML-shaped configuration tree, the same shape
// viper hands back from Unmarshal into map[string]interface{}.
type Map map[string]interface{}

// Clone returns a shallow copy of m.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Well-known configuration keys. Anything else set via SetConfig* is kept
// in the generic map and surfaced through ConfigKeys/GetConfig.
const (
	ConfigHubName           = "hub.name"
	ConfigHubDesc           = "hub.desc"
	ConfigHubMOTD           = "hub.motd"
	ConfigHubPrivate        = "hub.private"
	ConfigPassword          = "hub.password"
	ConfigVerifyBypassCIDR  = "verify.bypass_cidr"
	ConfigWriteQueueCap     = "session.write_queue_cap"
	ConfigChatLogJoin       = "chat.log.join"
	ConfigIRCEnabled        = "irc.enabled"
	ConfigMetricsEnabled    = "metrics.enabled"
)

var configAliases = map[string]string{
	"name":     ConfigHubName,
	"desc":     ConfigHubDesc,
	"motd":     ConfigHubMOTD,
	"private":  ConfigHubPrivate,
	"password": ConfigPassword,
}

// configIgnored lists keys that can only be set at construction time, never
// through the live config surface.
var configIgnored = map[string]struct{}{
	"serve.host": {},
	"serve.port": {},
}

type config struct {
	sync.RWMutex

	name     string
	desc     string
	motd     string
	private  bool
	password string

	bypassCIDR   string
	writeQueue   int
	chatLogJoin  int
	ircEnabled   bool
	metrics      bool

	m Map // anything not modeled as a typed field above
}

func defaultConfig() *config {
	return &config{
		name:        "ADC Hub",
		desc:        "a hub for the ADC protocol",
		motd:        "Welcome!",
		password:    "madcap",
		writeQueue:  256,
		chatLogJoin: 10,
		m:           make(Map),
	}
}

// MergeConfig applies every key in m to the hub's live configuration,
// recursing into nested maps using dotted paths.
func (h *Hub) MergeConfig(m Map) {
	h.mergeConfigPath("", m)
}

func (h *Hub) mergeConfigPath(path string, m Map) {
	for k, v := range m {
		key := k
		if path != "" {
			key = path + "." + k
		}
		switch v := v.(type) {
		case Map:
			h.mergeConfigPath(key, v)
		case map[string]interface{}:
			h.mergeConfigPath(key, Map(v))
		default:
			h.setConfig(key, v)
		}
	}
}

func (h *Hub) setConfigMap(key string, val interface{}) {
	if _, ok := configIgnored[key]; ok {
		return
	}
	h.conf.Lock()
	if h.conf.m == nil {
		h.conf.m = make(Map)
	}
	h.conf.m[key] = val
	h.conf.Unlock()
}

func (h *Hub) getConfigMap(key string) (interface{}, bool) {
	h.conf.RLock()
	val, ok := h.conf.m[key]
	h.conf.RUnlock()
	return val, ok
}

func resolveAlias(key string) string {
	if alias, ok := configAliases[key]; ok {
		return alias
	}
	return key
}

func (h *Hub) setConfig(key string, val interface{}) {
	switch val := val.(type) {
	case bool:
		h.SetConfigBool(key, val)
	case string:
		h.SetConfigString(key, val)
	case int:
		h.SetConfigInt(key, int64(val))
	case int64:
		h.SetConfigInt(key, val)
	case float64:
		h.SetConfigInt(key, int64(val))
	default:
		panic(fmt.Errorf("hub: unsupported config type for %q: %T", key, val))
	}
}

// SetConfig applies a single untyped value, dispatching on its Go type.
func (h *Hub) SetConfig(key string, val interface{}) { h.setConfig(key, val) }

// ConfigKeys lists every known configuration key, well-known first.
func (h *Hub) ConfigKeys() []string {
	keys := []string{
		ConfigHubName, ConfigHubDesc, ConfigHubMOTD, ConfigHubPrivate,
		ConfigPassword, ConfigVerifyBypassCIDR, ConfigWriteQueueCap,
		ConfigChatLogJoin, ConfigIRCEnabled, ConfigMetricsEnabled,
	}
	h.conf.RLock()
	for k := range h.conf.m {
		keys = append(keys, k)
	}
	h.conf.RUnlock()
	sort.Strings(keys)
	return keys
}

// GetConfig returns the current value for key, regardless of type.
func (h *Hub) GetConfig(key string) (interface{}, bool) {
	key = resolveAlias(key)
	switch key {
	case ConfigHubName, ConfigHubDesc, ConfigHubMOTD, ConfigPassword, ConfigVerifyBypassCIDR:
		return h.GetConfigString(key)
	case ConfigWriteQueueCap, ConfigChatLogJoin:
		return h.GetConfigInt(key)
	case ConfigHubPrivate, ConfigIRCEnabled, ConfigMetricsEnabled:
		return h.GetConfigBool(key)
	}
	return h.getConfigMap(key)
}

func (h *Hub) SetConfigString(key string, val string) {
	key = resolveAlias(key)
	switch key {
	case ConfigHubName:
		h.conf.Lock()
		h.conf.name = val
		h.conf.Unlock()
	case ConfigHubDesc:
		h.conf.Lock()
		h.conf.desc = val
		h.conf.Unlock()
	case ConfigHubMOTD:
		h.conf.Lock()
		h.conf.motd = val
		h.conf.Unlock()
	case ConfigPassword:
		h.conf.Lock()
		h.conf.password = val
		h.conf.Unlock()
	case ConfigVerifyBypassCIDR:
		h.conf.Lock()
		h.conf.bypassCIDR = val
		h.conf.Unlock()
	default:
		h.setConfigMap(key, val)
	}
}

func (h *Hub) GetConfigString(key string) (string, bool) {
	key = resolveAlias(key)
	h.conf.RLock()
	defer h.conf.RUnlock()
	switch key {
	case ConfigHubName:
		return h.conf.name, true
	case ConfigHubDesc:
		return h.conf.desc, true
	case ConfigHubMOTD:
		return h.conf.motd, true
	case ConfigPassword:
		return h.conf.password, true
	case ConfigVerifyBypassCIDR:
		return h.conf.bypassCIDR, true
	default:
		v, ok := h.conf.m[key]
		if !ok {
			return "", false
		}
		if s, ok := v.(string); ok {
			return s, true
		}
		return fmt.Sprint(v), true
	}
}

func (h *Hub) SetConfigBool(key string, val bool) {
	key = resolveAlias(key)
	switch key {
	case ConfigHubPrivate:
		h.conf.Lock()
		h.conf.private = val
		h.conf.Unlock()
	case ConfigIRCEnabled:
		h.conf.Lock()
		h.conf.ircEnabled = val
		h.conf.Unlock()
	case ConfigMetricsEnabled:
		h.conf.Lock()
		h.conf.metrics = val
		h.conf.Unlock()
	default:
		h.setConfigMap(key, val)
	}
}

func (h *Hub) GetConfigBool(key string) (bool, bool) {
	key = resolveAlias(key)
	h.conf.RLock()
	defer h.conf.RUnlock()
	switch key {
	case ConfigHubPrivate:
		return h.conf.private, true
	case ConfigIRCEnabled:
		return h.conf.ircEnabled, true
	case ConfigMetricsEnabled:
		return h.conf.metrics, true
	default:
		v, ok := h.conf.m[key]
		if !ok {
			return false, false
		}
		switch v := v.(type) {
		case bool:
			return v, true
		case string:
			b, _ := strconv.ParseBool(v)
			return b, true
		default:
			return false, true
		}
	}
}

func (h *Hub) SetConfigInt(key string, val int64) {
	key = resolveAlias(key)
	switch key {
	case ConfigWriteQueueCap:
		h.conf.Lock()
		h.conf.writeQueue = int(val)
		h.conf.Unlock()
	case ConfigChatLogJoin:
		h.conf.Lock()
		h.conf.chatLogJoin = int(val)
		h.conf.Unlock()
	default:
		h.setConfigMap(key, val)
	}
}

func (h *Hub) GetConfigInt(key string) (int64, bool) {
	key = resolveAlias(key)
	h.conf.RLock()
	defer h.conf.RUnlock()
	switch key {
	case ConfigWriteQueueCap:
		return int64(h.conf.writeQueue), true
	case ConfigChatLogJoin:
		return int64(h.conf.chatLogJoin), true
	default:
		v, ok := h.conf.m[key]
		if !ok {
			return 0, false
		}
		switch v := v.(type) {
		case int64:
			return v, true
		case int:
			return int64(v), true
		case string:
			i, _ := strconv.ParseInt(v, 10, 64)
			return i, true
		default:
			return 0, true
		}
	}
}

func (h *Hub) getName() string      { s, _ := h.GetConfigString(ConfigHubName); return s }
func (h *Hub) getDesc() string      { s, _ := h.GetConfigString(ConfigHubDesc); return s }
func (h *Hub) getMOTD() string      { s, _ := h.GetConfigString(ConfigHubMOTD); return s }
func (h *Hub) getPassword() string  { s, _ := h.GetConfigString(ConfigPassword); return s }
func (h *Hub) writeQueueCap() int   { n, _ := h.GetConfigInt(ConfigWriteQueueCap); return int(n) }

// IsPrivate reports whether the hub is marked private (reserved for future
// admission control; the core does not currently gate on it).
func (h *Hub) IsPrivate() bool { b, _ := h.GetConfigBool(ConfigHubPrivate); return b }
