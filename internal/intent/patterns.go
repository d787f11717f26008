package intent

import (
	"regexp"
	"strings"
)

// actionRule derives the action from the matched groups (groups[0] is the
// whole match).
type actionRule func(groups []string) string

// fixed always yields action.
func fixed(action string) actionRule {
	return func([]string) string { return action }
}

// fromGroup yields the lower-cased text of capture group n.
func fromGroup(n int) actionRule {
	return func(groups []string) string {
		return strings.ToLower(groups[n])
	}
}

// binding copies capture group into params[key]. An empty group falls back
// to def; with no default the key is left out.
type binding struct {
	key   string
	group int
	def   string
}

func bind(key string, group int) binding { return binding{key: key, group: group} }

func bindOr(key string, group int, def string) binding {
	return binding{key: key, group: group, def: def}
}

// pattern is one row of the table.
type pattern struct {
	matcher  *regexp.Regexp
	category Category
	action   actionRule
	extract  []binding
}

type rawPattern struct {
	expr     string
	category Category
	action   actionRule
	extract  []binding
}

// rawPatterns is evaluated top to bottom and the first match wins, so
// order is load-bearing. Narrow matchers precede the broad ones that would
// shadow them: VRAM and temperature before general GPU stats, atomic and
// ublue queries before "show <path>" file reads, system process listing
// before the generic process listing.
var rawPatterns = []rawPattern{
	// GPU
	{`(?:show|get|check)[\s-]*(?:gpu[\s-]*)?vram(?:[\s-]*(?:usage|stats?))?`, CategoryGPU, fixed("vram"), nil},
	{`vram`, CategoryGPU, fixed("vram"), nil},
	{`(?:gpu|show|get|check)[\s-]*temp(?:erature)?`, CategoryGPU, fixed("temp"), nil},
	{`(?:gpu|rocm)[\s-]*(?:stats?|status|info)`, CategoryGPU, fixed("stats"), nil},
	{`(?:show|get|check)[\s-]*(?:gpu|rocm)(?:[\s-]*(?:stats?|status|info))?`, CategoryGPU, fixed("stats"), nil},

	// Git
	{`git[\s-]+(status|st|diff|log)`, CategoryGit, fromGroup(1), nil},
	{`(?:show|check)[\s-]*(?:git[\s-]*)?(?:status|changes|diff)`, CategoryGit, fixed("status"), nil},
	{`git[\s-]+commit[\s-]+-m[\s-]+"([^"]+)"`, CategoryGit, fixed("commit"), []binding{bind("message", 1)}},

	// Atomic desktop (rpm-ostree, flatpak, toolbox)
	{`(?:show|get|check)[\s-]*(?:rpm-?ostree|ostree)[\s-]*(?:status)?`, CategoryAtomic, fixed("ostree_status"), nil},
	{`(?:ostree|rpm-?ostree)[\s-]*status`, CategoryAtomic, fixed("ostree_status"), nil},
	{`(?:check|show)[\s-]*(?:system[\s-]*)?updates?`, CategoryAtomic, fixed("check_updates"), nil},
	{`(?:rpm-?ostree|ostree)[\s-]*(?:check|show)[\s-]*updates?`, CategoryAtomic, fixed("check_updates"), nil},
	{`(?:show|list|get)[\s-]*layered[\s-]*packages?`, CategoryAtomic, fixed("layered_packages"), nil},
	{`(?:show|list|get)[\s-]*flatpaks?(?:[\s-]*apps?)?`, CategoryAtomic, fixed("flatpaks"), nil},
	{`(?:check|show)[\s-]*flatpak[\s-]*updates?`, CategoryAtomic, fixed("flatpak_updates"), nil},
	{`(?:show|list|get)[\s-]*toolbox(?:es)?`, CategoryAtomic, fixed("toolboxes"), nil},
	{`(?:show|list|get)[\s-]*(?:distrobox|toolbox)[\s-]*(?:containers?|list)?`, CategoryAtomic, fixed("toolboxes"), nil},

	// Universal Blue images
	{`(?:check|show)[\s-]*image[\s-]*updates?`, CategoryUBlue, fixed("image_updates"), nil},
	{`(?:show|get|check)[\s-]*(?:ublue[\s-]*|bazzite[\s-]*|bluefin[\s-]*|aurora[\s-]*)?image(?:[\s-]*info)?`, CategoryUBlue, fixed("image_info"), nil},
	{`(?:show|get|check)[\s-]*build[\s-]*(?:type|variant)`, CategoryUBlue, fixed("build_type"), nil},
	{`(?:list|show)[\s-]*(?:ujust[\s-]*)?recipes`, CategoryUBlue, fixed("list_recipes"), nil},
	{`ujust[\s-]+([\w-]+)`, CategoryUBlue, fixed("run_recipe"), []binding{bind("recipe", 1)}},
	{`(?:show|check|get)[\s-]*gaming(?:[\s-]*status)?`, CategoryUBlue, fixed("gaming_status"), nil},
	{`(?:show|check)[\s-]*build[\s-]*tools`, CategoryUBlue, fixed("build_tools"), nil},
	{`(?:list|show)[\s-]*(?:container[\s-]*)?images`, CategoryUBlue, fixed("list_images"), nil},

	// File operations
	{`(?:read|show|cat)[\s-]+(?:file[\s-]+)?(.+)`, CategoryFile, fixed("read"), []binding{bind("path", 1)}},
	{`(?:write|create)[\s-]+(?:file[\s-]+)?(.+)`, CategoryFile, fixed("write"), []binding{bind("path", 1)}},
	{`(?:list|ls)[\s-]+(.+)`, CategoryFile, fixed("list"), []binding{bind("path", 1)}},
	{`(?:find|search)[\s-]+(?:for[\s-]+)?(.+?)(?:[\s-]+in[\s-]+(.+))?`, CategoryFile, fixed("search"),
		[]binding{bind("pattern", 1), bindOr("path", 2, ".")}},

	// System
	{`(?:show|get|check)[\s-]*(?:mem|memory|ram)(?:[\s-]*usage)?`, CategorySystem, fixed("memory"), nil},
	{`(?:show|get|check)[\s-]*(?:disk|space|storage)(?:[\s-]*usage)?`, CategorySystem, fixed("disk"), nil},
	{`(?:systemctl|service)[\s-]+status[\s-]+(.+)`, CategorySystem, fixed("service_status"), []binding{bind("service", 1)}},
	{`(?:check|is)[\s-]+(.+?)[\s-]+(?:running|active)`, CategorySystem, fixed("service_status"), []binding{bind("service", 1)}},
	{`(?:show|get|check)[\s-]*(?:system|systemd)?[\s-]*(?:logs?|journal)(?:[\s-]*(?:for|from))?[\s-]*(.*)`, CategorySystem, fixed("logs"),
		[]binding{bind("filter", 1)}},
	{`(?:list|show)[\s-]*(?:all[\s-]*)?services`, CategorySystem, fixed("list_services"), nil},
	{`(?:show|get|check|list)[\s-]*(?:processes?|procs?)(?:[\s-]*list)?`, CategorySystem, fixed("processes"), nil},

	// Build
	{`(?:build|compile|make)(?:[\s-]+(.+))?`, CategoryBuild, fixed("ninja"), []binding{bindOr("target", 1, "all")}},
	{`cmake[\s-]+(.+)`, CategoryBuild, fixed("cmake"), []binding{bind("args", 1)}},

	// Packages
	{`(?:is|check)[\s-]+(.+?)[\s-]+installed`, CategoryPackage, fixed("check"), []binding{bind("package", 1)}},
	{`pip[\s-]+show[\s-]+(.+)`, CategoryPackage, fixed("info"), []binding{bind("package", 1)}},

	// Processes
	{`(?:show|list|ps)[\s-]*(?:processes?)?(?:[\s-]+(.+))?`, CategoryProcess, fixed("list"), []binding{bind("filter", 1)}},

	// Network
	{`(?:port|check)[\s-]+(\d+)`, CategoryNetwork, fixed("port_check"), []binding{bind("port", 1)}},
}

// compile anchors every expression at both ends and makes it
// case-insensitive.
func compile(raw []rawPattern) []pattern {
	out := make([]pattern, len(raw))
	for i, r := range raw {
		out[i] = pattern{
			matcher:  regexp.MustCompile(`(?i)^(?:` + r.expr + `)$`),
			category: r.category,
			action:   r.action,
			extract:  r.extract,
		}
	}
	return out
}

var defaultPatterns = compile(rawPatterns)
