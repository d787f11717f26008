package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tlee933/rai/internal/intent"
)

// outputLimit caps bodies of tools that can print a screenful or more.
const outputLimit = 2000

// arg fills one tool argument, either from an intent parameter or with a
// constant. Parameters that are absent or empty are left out.
type arg struct {
	name  string
	param string
	value any
}

func fromParam(name, param string) arg { return arg{name: name, param: param} }

func constant(name string, value any) arg { return arg{name: name, value: value} }

// route is the fixed tool call behind a (category, action) pair.
type route struct {
	server string
	tool   string
	// title may reference intent parameters as {name}.
	title string
	args  []arg
	limit int
}

func (rt route) arguments(in intent.Intent) map[string]any {
	out := make(map[string]any, len(rt.args))
	for _, a := range rt.args {
		if a.param == "" {
			out[a.name] = a.value
			continue
		}
		if v := in.Param(a.param); v != "" {
			out[a.name] = v
		}
	}
	return out
}

func (rt route) heading(in intent.Intent) string {
	if !strings.Contains(rt.title, "{") {
		return rt.title
	}
	pairs := make([]string, 0, 2*len(in.Params))
	for k, v := range in.Params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(rt.title)
}

var routes = map[intent.Category]map[string]route{
	intent.CategoryGPU: {
		"stats": {server: "rocm", tool: "get_gpu_stats", title: "GPU Statistics"},
		"vram":  {server: "rocm", tool: "get_vram", title: "VRAM Usage"},
		"temp":  {server: "rocm", tool: "get_gpu_temp", title: "GPU Temperature"},
	},
	intent.CategoryFile: {
		"read": {server: "filesystem", tool: "read_file", title: "File: {path}",
			args: []arg{fromParam("path", "path")}},
		"list": {server: "filesystem", tool: "list_directory", title: "Directory: {path}",
			args: []arg{fromParam("path", "path")}},
		"search": {server: "filesystem", tool: "search_files", title: "Search results for '{pattern}'",
			args: []arg{fromParam("path", "path"), fromParam("pattern", "pattern")}},
	},
	intent.CategorySystem: {
		"memory": {server: "linux", tool: "get_memory_information", title: "Memory Information"},
		"disk":   {server: "linux", tool: "get_disk_usage", title: "Disk Usage"},
		"service_status": {server: "linux", tool: "get_service_status", title: "Service: {service}",
			args: []arg{fromParam("service_name", "service")}},
		"list_services": {server: "linux", tool: "list_services", title: "Systemd Services"},
		"processes":     {server: "linux", tool: "list_processes", title: "Running Processes", limit: outputLimit},
		"logs": {server: "linux", tool: "get_journal_logs", title: "System Logs", limit: outputLimit,
			args: []arg{constant("lines", 50), fromParam("filter", "filter")}},
	},
	intent.CategoryAtomic: {
		"ostree_status":    {server: "atomic", tool: "get_rpm_ostree_status", title: "rpm-ostree Status"},
		"check_updates":    {server: "atomic", tool: "check_rpm_ostree_updates", title: "System Updates"},
		"layered_packages": {server: "atomic", tool: "list_layered_packages", title: "Layered Packages"},
		"flatpaks":         {server: "atomic", tool: "list_flatpaks", title: "Flatpak Applications"},
		"flatpak_updates":  {server: "atomic", tool: "get_flatpak_updates", title: "Flatpak Updates"},
		"toolboxes":        {server: "atomic", tool: "list_toolboxes", title: "Toolbox Containers"},
	},
	intent.CategoryUBlue: {
		"image_info":    {server: "ublue", tool: "get_image_info", title: "Image Information"},
		"image_updates": {server: "ublue", tool: "check_image_updates", title: "Image Updates"},
		"build_type":    {server: "ublue", tool: "check_build_type", title: "Build Type"},
		"list_recipes":  {server: "ublue", tool: "list_ujust_recipes", title: "ujust Recipes"},
		"run_recipe": {server: "ublue", tool: "run_ujust_recipe", title: "Recipe '{recipe}'",
			args: []arg{fromParam("recipe", "recipe")}},
		"gaming_status": {server: "ublue", tool: "get_gaming_status", title: "Gaming Status"},
		"build_tools":   {server: "ublue", tool: "check_build_tools", title: "Build Tools"},
		"list_images":   {server: "ublue", tool: "list_container_images", title: "Container Images"},
	},
}

// lookup returns the route for in. Unknown GPU actions show full stats.
func lookup(in intent.Intent) (route, bool) {
	byAction, ok := routes[in.Category]
	if !ok {
		return route{}, false
	}
	if rt, ok := byAction[in.Action]; ok {
		return rt, true
	}
	if in.Category == intent.CategoryGPU {
		return byAction["stats"], true
	}
	return route{}, false
}

// fallbackPrompt phrases an intent without a route as a request for the
// LLM.
func fallbackPrompt(in intent.Intent) string {
	switch in.Category {
	case intent.CategoryGit:
		return "Run git " + in.Action
	case intent.CategorySystem:
		return fmt.Sprintf("Get %s information", in.Action)
	case intent.CategoryAtomic:
		return fmt.Sprintf("Get atomic desktop %s information", in.Action)
	case intent.CategoryUBlue:
		return fmt.Sprintf("Get Universal Blue %s information", in.Action)
	default:
		prompt := fmt.Sprintf("Execute: %s %s", in.Category, in.Action)
		if p := formatParams(in.Params); p != "" {
			prompt += " (" + p + ")"
		}
		return prompt
	}
}

func formatParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + params[k]
	}
	return strings.Join(parts, ", ")
}
