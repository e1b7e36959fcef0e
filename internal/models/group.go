package models

// Group описывает группу ревьюеров; идентичность задаётся именем.
type Group struct {
	Name  string `validate:"required"`
	Title string
}

// GroupConvention задаёт соглашение об именовании QAM-групп конкретного
// развёртывания build-сервиса.
type GroupConvention struct {
	// Prefix — обязательный префикс имени QAM-группы.
	Prefix string
	// Denylist перечисляет автоматизационные группы, которые подходят под
	// префикс, но ревью людьми не выполняют.
	Denylist []string
}

// IsQAM сообщает, обозначает ли имя группу ручного QAM-ревью.
func (c GroupConvention) IsQAM(name string) bool {
	if len(name) < len(c.Prefix) || name[:len(c.Prefix)] != c.Prefix {
		return false
	}
	for _, denied := range c.Denylist {
		if name == denied {
			return false
		}
	}
	return true
}

// Известные соглашения именования QAM-групп.
var (
	// OpenSUSEConvention действует в публичном развёртывании.
	OpenSUSEConvention = GroupConvention{Prefix: "qa-opensuse.org"}
	// InternalConvention действует во внутреннем развёртывании: префикс qam
	// за вычетом автоматизационных групп.
	InternalConvention = GroupConvention{
		Prefix:   "qam",
		Denylist: []string{"qam-auto", "qam-openqa", "qam-ci"},
	}
)
