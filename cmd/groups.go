package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"photosweep/internal/models"
	"photosweep/internal/storage"
)

var (
	groupsJSON    bool
	groupsLong    bool
	groupsSummary bool
	groupsLimit   int
	groupsOffset  int
	groupsTypes   []string
)

var groupsCmd = &cobra.Command{
	Use:   "groups [folder]",
	Short: "List groups of redundant photos",
	Long: `Group the scanned photos and display the groups.

Groups are recomputed from stored analyses on every run, so changing the
threshold or the group types does not need a new scan.

Each group shows:
- Group type and similarity
- Members with their quality scores
- The recommended best shot marked with ✓
- Deletion candidates marked with ✗

Example:
  photosweep groups                   # Show first 10 groups (default)
  photosweep groups -n 0              # Show all groups
  photosweep groups -s                # Summary view (compact)
  photosweep groups -t similar        # Only similar photos
  photosweep groups --threshold 0.95  # Stricter similarity
  photosweep groups ./photos/2024     # Only files under a folder`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGroups,
}

func init() {
	groupsCmd.Flags().BoolVar(&groupsJSON, "json", false, "Output in JSON format")
	groupsCmd.Flags().BoolVarP(&groupsLong, "long", "l", false, "Show detailed member info")
	groupsCmd.Flags().BoolVarP(&groupsSummary, "summary", "s", false, "Show summary only (group counts and sizes)")
	groupsCmd.Flags().IntVarP(&groupsLimit, "limit", "n", 10, "Limit number of groups to display (0 = all)")
	groupsCmd.Flags().IntVar(&groupsOffset, "offset", 0, "Skip first N groups (for pagination)")
	groupsCmd.Flags().StringSliceVarP(&groupsTypes, "type", "t", nil, "Group types to include: "+typeNames())
	rootCmd.AddCommand(groupsCmd)
}

func typeNames() string {
	names := make([]string, 0, len(models.AllGroupTypes()))
	for _, t := range models.AllGroupTypes() {
		names = append(names, t.String())
	}
	return strings.Join(names, ", ")
}

// groupMember is one resolved member for display
type groupMember struct {
	ID       string  `json:"id"`
	Path     string  `json:"path"`
	FileSize int64   `json:"file_size"`
	Quality  float64 `json:"quality"`
	Analyzed bool    `json:"analyzed"`
	Keep     bool    `json:"keep"`
}

// groupView is a group with its members resolved
type groupView struct {
	models.Group
	Name        string        `json:"name"`
	Reclaimable int64         `json:"reclaimable"`
	Members     []groupMember `json:"members"`
}

func runGroups(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	opts := cfg.GroupingOptions()
	if len(groupsTypes) > 0 {
		var types []models.GroupType
		for _, name := range groupsTypes {
			t, err := models.ParseGroupType(name)
			if err != nil {
				return err
			}
			types = append(types, t)
		}
		opts = opts.Only(types...)
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	assets, err := store.Assets(ctx)
	if err != nil {
		return fmt.Errorf("failed to load assets: %w", err)
	}
	if len(args) == 1 {
		folder, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve path: %w", err)
		}
		assets = underFolder(assets, folder)
	}

	if len(assets) == 0 {
		fmt.Println("No photos stored.")
		fmt.Println("Run 'photosweep scan <folder>' to scan a folder.")
		return nil
	}

	e, err := newEngine(store)
	if err != nil {
		return err
	}
	logger.Printf("grouping %d assets: %s", len(assets), opts)
	groups, err := e.GroupMany(ctx, assets, opts)
	if err != nil {
		return fmt.Errorf("failed to group: %w", err)
	}

	views, err := resolveGroups(cmd, store, assets, groups)
	if err != nil {
		return err
	}

	if groupsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	if len(views) == 0 {
		fmt.Println("No groups found.")
		return nil
	}

	// Calculate totals
	count, size := reclaimable(groups)
	fmt.Printf("Found %d groups (%d deletion candidates, %s reclaimable)\n\n",
		len(views), count, formatSize(size))

	// Apply pagination
	totalGroups := len(views)
	startIdx := groupsOffset
	if startIdx > len(views) {
		startIdx = len(views)
	}
	views = views[startIdx:]

	if groupsLimit > 0 && groupsLimit < len(views) {
		views = views[:groupsLimit]
	}

	// Display groups
	if len(views) == 0 {
		fmt.Printf("No groups in range (offset %d exceeds total %d)\n", groupsOffset, totalGroups)
	} else if groupsSummary {
		printSummaryTable(views, startIdx)
	} else {
		for i, v := range views {
			printGroup(startIdx+i+1, v, groupsLong)
		}
	}

	// Show pagination info
	endIdx := startIdx + len(views)
	if len(views) > 0 {
		fmt.Printf("Showing groups %d-%d of %d\n", startIdx+1, endIdx, totalGroups)
		if endIdx < totalGroups {
			limitArg := ""
			if groupsLimit > 0 {
				limitArg = fmt.Sprintf(" -n %d", groupsLimit)
			}
			fmt.Printf("Next page: photosweep groups%s --offset %d\n", limitArg, endIdx)
		}
	}

	return nil
}

// resolveGroups attaches paths and stored quality scores to every member
func resolveGroups(cmd *cobra.Command, store *storage.Storage, assets []models.AssetRef, groups []models.Group) ([]groupView, error) {
	byID := make(map[string]models.AssetRef, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}

	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		v := groupView{
			Group:   g,
			Name:    g.DisplayName(),
			Members: make([]groupMember, len(g.MemberIDs)),
		}
		if deletable(g) {
			v.Reclaimable = g.ReclaimableSize()
		}
		for i, id := range g.MemberIDs {
			m := groupMember{
				ID:       id,
				Path:     byID[id].Path,
				FileSize: g.FileSizes[i],
				Keep:     g.BestShotIndex != nil && *g.BestShotIndex == i,
			}
			r, ok, err := store.Analysis(cmd.Context(), id)
			if err != nil {
				return nil, err
			}
			if ok {
				m.Quality = r.QualityScore
				m.Analyzed = true
			}
			v.Members[i] = m
		}
		views = append(views, v)
	}
	return views, nil
}

// deletable reports whether the members other than the best shot are
// deletion candidates. A group that needs a best shot recommends nothing
// until one is chosen.
func deletable(g models.Group) bool {
	p := g.Type.Policy()
	if p.NeedsBestShotSelection {
		return g.HasBestShot()
	}
	return p.AutoDeleteRecommended
}

// reclaimable counts the distinct deletion candidates of deletable groups
func reclaimable(groups []models.Group) (count int, size int64) {
	seen := make(map[string]bool)
	for _, g := range groups {
		if !deletable(g) {
			continue
		}
		for i, id := range g.MemberIDs {
			if seen[id] || (g.BestShotIndex != nil && *g.BestShotIndex == i) {
				continue
			}
			seen[id] = true
			count++
			size += g.FileSizes[i]
		}
	}
	return count, size
}

func underFolder(assets []models.AssetRef, folder string) []models.AssetRef {
	prefix := strings.TrimSuffix(folder, string(filepath.Separator)) + string(filepath.Separator)
	var out []models.AssetRef
	for _, a := range assets {
		if strings.HasPrefix(a.Path, prefix) {
			out = append(out, a)
		}
	}
	return out
}

func printSummaryTable(views []groupView, offset int) {
	fmt.Printf("%-6s  %-14s  %-8s  %-12s  %s\n", "Group", "Type", "Members", "Reclaimable", "Keep (best shot)")
	fmt.Println(strings.Repeat("-", 76))

	for i, v := range views {
		keepName := "-"
		for _, m := range v.Members {
			if m.Keep {
				keepName = filepath.Base(m.Path)
			}
		}
		if len(keepName) > 30 {
			keepName = keepName[:27] + "..."
		}

		fmt.Printf("#%-5d  %-14s  %-8d  %-12s  %s\n",
			offset+i+1, v.Name, len(v.Members), formatSize(v.Reclaimable), keepName)
	}
	fmt.Println()
}

func printGroup(n int, v groupView, long bool) {
	header := fmt.Sprintf("Group #%d %s (%d members)", n, v.Name, len(v.Members))
	if v.SimilarityScore != nil {
		header += fmt.Sprintf("  similarity %.0f%%", *v.SimilarityScore*100)
	}
	fmt.Println(header)
	fmt.Println(strings.Repeat("-", 60))

	candidates := deletable(v.Group)
	for _, m := range v.Members {
		marker := "•"
		switch {
		case m.Keep:
			marker = "✓"
		case candidates:
			marker = "✗"
		}

		quality := "   -"
		if m.Analyzed {
			quality = fmt.Sprintf("%4.2f", m.Quality)
		}

		if long {
			fmt.Printf("  %s %s\n", marker, m.Path)
			fmt.Printf("      ID: %s  Size: %s  Quality: %s\n", m.ID, formatSize(m.FileSize), quality)
		} else {
			fmt.Printf("  %s %-40s  %8s  Quality: %s\n",
				marker, shortenPath(m.Path, 40), formatSize(m.FileSize), quality)
		}
	}
	fmt.Println()
}

func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}

	// Try to show filename and as much of the path as possible
	dir, file := filepath.Split(path)
	if len(file) >= maxLen-3 {
		return "..." + file[len(file)-(maxLen-3):]
	}

	remaining := maxLen - len(file) - 4 // 4 for ".../"
	if remaining > 0 && len(dir) > remaining {
		dir = dir[len(dir)-remaining:]
	}
	return "..." + dir + file
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
