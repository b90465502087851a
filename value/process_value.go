// Package value expands placeholder templates such as "@name" or "@randInt:4"
// into generated values, for fixture documents.
package value

import (
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"go.mongodb.org/mongo-driver/bson"
)

// Handler is not safe for concurrent use. Give each worker its own.
type Handler struct {
	fake *gofakeit.Faker
	r    *rand.Rand
}

// NewValueHandler 使用当前时间作为随机种子
func NewValueHandler() *Handler {
	return NewSeededHandler(time.Now().UnixNano())
}

// NewSeededHandler returns a handler whose output is reproducible for a seed.
func NewSeededHandler(seed int64) *Handler {
	return &Handler{
		fake: gofakeit.New(seed),
		r:    rand.New(rand.NewSource(seed)),
	}
}

// Document expands every placeholder in template and returns a new document.
func (h *Handler) Document(template bson.D) bson.D {
	return h.processD(template)
}

// ProcessDynamicValues 处理动态值占位符
func (h *Handler) ProcessDynamicValues(body interface{}) interface{} {
	switch v := body.(type) {
	case string:
		return h.generateDynamicValue(v)
	case bson.D:
		return h.processD(v)
	case bson.M:
		return bson.M(h.ProcessDynamicMap(v))
	case map[string]interface{}:
		return h.ProcessDynamicMap(v)
	case bson.A:
		return bson.A(h.processArray(v))
	case []interface{}:
		return h.processArray(v)
	default:
		return body
	}
}

func (h *Handler) ProcessDynamicMap(mapValue map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(mapValue))
	for k, v := range mapValue {
		result[k] = h.ProcessDynamicValues(v)
	}
	return result
}

func (h *Handler) processD(doc bson.D) bson.D {
	result := make(bson.D, len(doc))
	for i, e := range doc {
		result[i] = bson.E{Key: e.Key, Value: h.ProcessDynamicValues(e.Value)}
	}
	return result
}

// processArray 处理数组类型的值
func (h *Handler) processArray(arr []interface{}) []interface{} {
	result := make([]interface{}, len(arr))
	for i, item := range arr {
		result[i] = h.ProcessDynamicValues(item)
	}
	return result
}

// generateDynamicValue 根据占位符生成动态值
func (h *Handler) generateDynamicValue(placeholder string) interface{} {
	if !strings.HasPrefix(placeholder, "@") {
		return placeholder
	}

	// 分割指令和参数
	parts := strings.SplitN(placeholder, ":", 2)
	directive := parts[0]

	var args string
	if len(parts) > 1 {
		args = parts[1]
	}

	switch directive {
	case "@randInt":
		return h.generateRandomInt(args)
	case "@randString":
		return h.GenerateRandomString(args)
	case "@oneOf":
		return h.oneOf(args)
	case "@email":
		return h.fake.Email()
	case "@name":
		return h.fake.Name()
	case "@word":
		return h.fake.Word()
	case "@sentence":
		return h.fake.Sentence(5)
	case "@uuid":
		return h.fake.UUID()
	case "@timestamp":
		return h.fake.Date().Unix()
	case "@date":
		return h.fake.Date().Format("2006-01-02")
	case "@datetime":
		return h.fake.Date().Format("2006-01-02 15:04:05")
	case "@bool":
		return h.fake.Bool()
	case "@float":
		return h.fake.Float64Range(0, 1000)
	default:
		return placeholder
	}
}

// generateRandomInt 生成随机整数
func (h *Handler) generateRandomInt(args string) int64 {
	if args == "" {
		return h.fake.Int64()
	}

	// 解析数字位数
	if digit, err := strconv.Atoi(args); err == nil && digit > 0 && digit < 19 {
		m := int64(1)
		for i := 1; i < digit; i++ {
			m *= 10
		}
		return m + h.r.Int63n(m*10-m)
	}

	return h.fake.Int64()
}

// GenerateRandomString 生成随机字符串
func (h *Handler) GenerateRandomString(args string) string {
	length := 10
	if long, err := strconv.Atoi(args); err == nil && long >= 0 {
		length = long
	}
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[h.r.Intn(len(charset))]
	}
	return string(b)
}

// oneOf picks one of the '|' separated choices.
func (h *Handler) oneOf(args string) string {
	choices := strings.Split(args, "|")
	return choices[h.r.Intn(len(choices))]
}
