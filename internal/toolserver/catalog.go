package toolserver

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// safeValue is the default constraint on string arguments substituted into
// a command line.
var safeValue = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

// Param is one string argument of a tool.
type Param struct {
	Name        string
	Description string
	Required    bool
	// Allowed, when set, lists the only accepted values.
	Allowed []string
	// Pattern overrides safeValue.
	Pattern *regexp.Regexp
}

// Tool runs a fixed command, or probes for binaries on PATH, and returns
// the output unparsed.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	// Command is the argv to run. An element "{name}" is replaced by the
	// value of parameter name.
	Command []string
	// Probe lists binaries to look up instead of running Command.
	Probe     []string
	Timeout   time.Duration
	MaxOutput int
}

// Catalog is the set of tools one built-in server offers.
type Catalog struct {
	Name        string
	Description string
	Tools       []Tool
}

// Tool returns the named tool.
func (c Catalog) Tool(name string) (Tool, bool) {
	for _, t := range c.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// rocmPath is where ROCm is installed; ROCM_PATH overrides /opt/rocm.
func rocmPath() string {
	if p := os.Getenv("ROCM_PATH"); p != "" {
		return p
	}
	return "/opt/rocm"
}

func rocmCatalog() Catalog {
	bin := func(name string) string { return filepath.Join(rocmPath(), "bin", name) }
	smi := bin("rocm-smi")
	return Catalog{
		Name:        "rocm",
		Description: "AMD GPU monitoring through the ROCm tools",
		Tools: []Tool{
			{Name: "get_gpu_stats", Description: "Get comprehensive GPU statistics", Command: []string{smi}},
			{Name: "get_vram", Description: "Get VRAM usage", Command: []string{smi, "--showmeminfo", "vram"}},
			{Name: "get_gpu_temp", Description: "Get GPU temperature in Celsius", Command: []string{smi, "--showtemp"}},
			{Name: "get_gpu_utilization", Description: "Get current GPU compute utilization percentage", Command: []string{smi, "--showuse"}},
			{Name: "get_rocm_version", Description: "Get ROCm version information", Command: []string{smi, "--showversion"}},
			{Name: "get_hip_version", Description: "Get HIP version information", Command: []string{bin("hipcc"), "--version"}},
			{Name: "rocminfo", Description: "Get detailed GPU capabilities and device info", Command: []string{bin("rocminfo")}, Timeout: 15 * time.Second},
		},
	}
}

func atomicCatalog() Catalog {
	return Catalog{
		Name:        "atomic",
		Description: "rpm-ostree, Flatpak and toolbox on atomic Fedora desktops",
		Tools: []Tool{
			{Name: "get_rpm_ostree_status", Description: "Get rpm-ostree deployment status and layered packages", Command: []string{"rpm-ostree", "status"}},
			{Name: "check_rpm_ostree_updates", Description: "Check for available rpm-ostree system updates", Command: []string{"rpm-ostree", "upgrade", "--check"}, Timeout: 60 * time.Second},
			{Name: "list_layered_packages", Description: "List rpm-ostree layered packages", Command: []string{"rpm-ostree", "status", "--booted"}},
			{Name: "list_flatpaks", Description: "List installed Flatpak applications", Command: []string{"flatpak", "list", "--app"}},
			{Name: "get_flatpak_updates", Description: "Check for available Flatpak updates", Command: []string{"flatpak", "remote-ls", "--updates"}, Timeout: 60 * time.Second},
			{Name: "list_toolboxes", Description: "List toolbox containers", Command: []string{"toolbox", "list"}},
			{Name: "get_ostree_info", Description: "Get ostree deployment information", Command: []string{"ostree", "admin", "status"}},
		},
	}
}

// safeRecipes are the ujust recipes run_ujust_recipe accepts.
var safeRecipes = []string{
	"update", "changelogs", "distrobox-assemble",
	"setup-gaming", "setup-flatpaks", "check-updates",
	"bazzite-rollback-helper",
}

func ublueCatalog() Catalog {
	return Catalog{
		Name:        "ublue",
		Description: "Universal Blue image information, ujust recipes and build tooling",
		Tools: []Tool{
			{Name: "get_image_info", Description: "Get current Universal Blue image information", Command: []string{"rpm-ostree", "status", "--booted"}},
			{Name: "check_image_updates", Description: "Check for new Universal Blue image builds", Command: []string{"rpm-ostree", "upgrade", "--check"}, Timeout: 60 * time.Second},
			{Name: "check_build_type", Description: "Detect which Universal Blue variant is running", Command: []string{"cat", "/etc/os-release"}},
			{Name: "list_ujust_recipes", Description: "List available ujust recipes", Command: []string{"ujust", "--list"}},
			{
				Name:        "run_ujust_recipe",
				Description: "Run a ujust recipe from the safe list",
				Params: []Param{{
					Name:        "recipe",
					Description: "Recipe name, e.g. update or changelogs",
					Required:    true,
					Allowed:     safeRecipes,
				}},
				Command:   []string{"ujust", "{recipe}"},
				Timeout:   10 * time.Minute,
				MaxOutput: 2000,
			},
			{Name: "get_gaming_status", Description: "Report which gaming tools are installed", Probe: []string{"steam", "gamemoderun", "mangohud", "lutris"}},
			{Name: "check_build_tools", Description: "Report which image build tools are installed", Probe: []string{"bootc", "podman", "buildah", "mkosi", "lorax"}},
			{Name: "list_container_images", Description: "List local container images", Command: []string{"podman", "images"}},
		},
	}
}

var catalogs = map[string]func() Catalog{
	"rocm":   rocmCatalog,
	"atomic": atomicCatalog,
	"ublue":  ublueCatalog,
}

// Lookup returns the built-in catalog called name.
func Lookup(name string) (Catalog, bool) {
	build, ok := catalogs[name]
	if !ok {
		return Catalog{}, false
	}
	return build(), true
}

// Names lists the built-in catalogs in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalogs))
	for name := range catalogs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
