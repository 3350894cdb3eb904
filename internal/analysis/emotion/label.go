package emotion

// Label 是模型在回复末尾附带的表情标签，取值范围封闭。
type Label string

const (
	Happy       Label = "Happy"
	Sad         Label = "Sad"
	Angry       Label = "Angry"
	Surprised   Label = "Surprised"
	Scared      Label = "Scared"
	Thoughtful  Label = "Thoughtful"
	Embarrassed Label = "Embarrassed"
	Neutral     Label = "Neutral"
)

// 匹配顺序即枚举顺序，多个标签同时命中时取第一个。
var ordered = []Label{
	Happy,
	Sad,
	Angry,
	Surprised,
	Scared,
	Thoughtful,
	Embarrassed,
	Neutral,
}

// Labels returns the closed label set in enumeration order.
func Labels() []Label {
	return append([]Label(nil), ordered...)
}

// Parse reports whether s is exactly one of the known labels.
func Parse(s string) (Label, bool) {
	for _, label := range ordered {
		if string(label) == s {
			return label, true
		}
	}
	return "", false
}

// Valid 判断标签是否属于封闭集合。
func (l Label) Valid() bool {
	_, ok := Parse(string(l))
	return ok
}

func (l Label) String() string {
	return string(l)
}
