package intent

// Category groups intents by the subsystem they touch.
type Category string

const (
	CategoryFile    Category = "file"
	CategoryGPU     Category = "gpu"
	CategoryGit     Category = "git"
	CategorySystem  Category = "system"
	CategoryAtomic  Category = "atomic"
	CategoryUBlue   Category = "ublue"
	CategoryProcess Category = "process"
	CategoryPackage Category = "package"
	CategoryNetwork Category = "network"
	CategoryBuild   Category = "build"
)

// Categories lists every category.
var Categories = []Category{
	CategoryFile, CategoryGPU, CategoryGit, CategorySystem, CategoryAtomic,
	CategoryUBlue, CategoryProcess, CategoryPackage, CategoryNetwork, CategoryBuild,
}

// Intent is the classification of one query. Params holds extracted values
// such as path, pattern, service or port.
type Intent struct {
	Category Category
	Action   string
	Params   map[string]string
}

// Param returns the named parameter, or "" when absent.
func (i Intent) Param(key string) string {
	return i.Params[key]
}

func (i Intent) String() string {
	return string(i.Category) + "/" + i.Action
}
