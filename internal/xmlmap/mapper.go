package xmlmap

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/qamtools/reviewtool/internal/domain"
)

// TextKey — зарезервированный ключ собственного текста элемента, имеющего
// атрибуты или дочерние элементы.
const TextKey = "_text"

// Fields содержит объединённую карту атрибутов и дочерних элементов одного узла.
// Значения: string (текст листа или атрибут), nil (пустой лист), *Node
// (вложенный объект) либо []any со значениями тех же видов в порядке документа.
type Fields map[string]any

// Node — структурно-обобщённая обёртка для вложенных объектов, когда
// вызывающий не задал собственный тип.
type Node struct {
	Fields Fields
}

// Factory строит типизированный объект из карты полей одного корневого элемента.
type Factory[T any] func(Fields) (T, error)

// Parse разбирает документ и строит по одному объекту T на каждый элемент
// rootTag в порядке документа. Ошибка разбора прерывает весь вызов; отсутствие
// совпадений даёт пустой срез.
func Parse[T any](data []byte, rootTag string, factory Factory[T]) ([]T, error) {
	root, err := decode(data)
	if err != nil {
		return nil, err
	}

	var out []T
	for _, el := range root.collect(rootTag) {
		obj, err := factory(el.fields())
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

// element — сырой узел XML-дерева до преобразования в Fields.
type element struct {
	name     string
	attrs    map[string]string
	children []*element
	text     strings.Builder
}

// decode строит дерево элементов из байтов документа.
func decode(data []byte) (*element, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	// Искусственный корень позволяет единообразно обходить документ.
	root := &element{name: ""}
	stack := []*element{root}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, domain.WrapParseError(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local}
			if len(t.Attr) > 0 {
				el.attrs = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					el.attrs[a.Name.Local] = a.Value
				}
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, el)
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 1 {
				return nil, domain.NewParseError("unbalanced closing tag " + t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			stack[len(stack)-1].text.Write(t)
		}
	}

	if len(stack) != 1 {
		return nil, domain.NewParseError("unexpected end of document")
	}
	return root, nil
}

// collect возвращает все элементы с заданным именем в порядке документа,
// не спускаясь внутрь найденных.
func (e *element) collect(tag string) []*element {
	var out []*element
	for _, child := range e.children {
		if child.name == tag {
			out = append(out, child)
			continue
		}
		out = append(out, child.collect(tag)...)
	}
	return out
}

// fields строит карту полей элемента: сначала атрибуты, затем дочерние
// элементы; при совпадении ключей дочерний элемент вытесняет атрибут.
// Повторы одного тега продвигаются в список начиная со второго вхождения.
func (e *element) fields() Fields {
	f := make(Fields, len(e.attrs)+len(e.children))
	for k, v := range e.attrs {
		f[k] = v
	}
	// Собственный текст смешанного элемента доступен через зарезервированный
	// ключ: у листьев он становится значением самого поля у родителя.
	if text := strings.TrimSpace(e.text.String()); text != "" {
		f[TextKey] = text
	}

	fromChild := make(map[string]bool, len(e.children))
	for _, child := range e.children {
		var val any
		if len(child.children) > 0 || len(child.attrs) > 0 {
			val = &Node{Fields: child.fields()}
		} else if text := strings.TrimSpace(child.text.String()); text != "" {
			val = text
		} else {
			val = nil
		}

		if !fromChild[child.name] {
			// Первое дочернее вхождение: перекрывает одноимённый атрибут.
			f[child.name] = val
			fromChild[child.name] = true
			continue
		}
		if list, ok := f[child.name].([]any); ok {
			f[child.name] = append(list, val)
		} else {
			f[child.name] = []any{f[child.name], val}
		}
	}
	return f
}

// String возвращает строковое значение поля либо пустую строку.
func (f Fields) String(key string) string {
	if s, ok := f[key].(string); ok {
		return s
	}
	return ""
}

// Has сообщает о наличии поля, включая пустые листовые элементы.
func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// Node возвращает вложенный объект либо nil.
func (f Fields) Node(key string) *Node {
	if n, ok := f[key].(*Node); ok {
		return n
	}
	return nil
}

// Nodes возвращает все вложенные объекты поля: одиночное значение
// оборачивается в срез из одного элемента, список фильтруется по типу.
func (f Fields) Nodes(key string) []*Node {
	switch v := f[key].(type) {
	case *Node:
		return []*Node{v}
	case []any:
		out := make([]*Node, 0, len(v))
		for _, item := range v {
			if n, ok := item.(*Node); ok {
				out = append(out, n)
			}
		}
		return out
	default:
		return nil
	}
}

// Strings возвращает все строковые значения поля в порядке документа.
func (f Fields) Strings(key string) []string {
	switch v := f[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Check сверяет ключи с известным набором полей фабрики. Ключи вне known и
// tolerated считаются ошибкой разбора: фабрика строит объект только из
// явно описанных полей.
func (f Fields) Check(known []string, tolerated []string) error {
	allowed := make(map[string]bool, len(known)+len(tolerated)+1)
	allowed[TextKey] = true
	for _, k := range known {
		allowed[k] = true
	}
	for _, k := range tolerated {
		allowed[k] = true
	}
	for k := range f {
		if !allowed[k] {
			return domain.NewParseError("unexpected field " + k)
		}
	}
	return nil
}
