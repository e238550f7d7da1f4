package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config represents the mock procedure set configuration
type Config struct {
	OutputDir   string
	NumProcs    int
	NumFuncs    int
	MaxDepth    int
	CallDensity float64 // 每个过程平均 exec 几个其他过程
	CycleRate   float64 // exec 回指更浅层过程的概率
	FuncRefs    int     // 每个过程最多引用的函数数
	Seed        int64
}

// ProcInfo represents a stored procedure in the mock set
type ProcInfo struct {
	Name  string
	Depth int
}

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.OutputDir, "o", "./mock-sql", "输出目录")
	flag.IntVar(&cfg.NumProcs, "procs", 500, "存储过程数量")
	flag.IntVar(&cfg.NumFuncs, "funcs", 100, "函数数量")
	flag.IntVar(&cfg.MaxDepth, "depth", 10, "最大调用深度")
	flag.Float64Var(&cfg.CallDensity, "density", 3.0, "平均每个过程调用几个其他过程")
	flag.Float64Var(&cfg.CycleRate, "cycles", 0.02, "循环引用概率")
	flag.IntVar(&cfg.FuncRefs, "refs", 3, "每个过程最多引用的函数数")
	flag.Int64Var(&cfg.Seed, "seed", time.Now().UnixNano(), "随机种子")
	flag.Parse()

	fmt.Printf("正在生成 mock 存储过程...\n")
	fmt.Printf("  过程数量: %d\n", cfg.NumProcs)
	fmt.Printf("  函数数量: %d\n", cfg.NumFuncs)
	fmt.Printf("  最大深度: %d\n", cfg.MaxDepth)
	fmt.Printf("  调用密度: %.1f\n", cfg.CallDensity)
	fmt.Printf("  随机种子: %d\n", cfg.Seed)

	if err := generateProject(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n✓ 生成完成: %s\n", cfg.OutputDir)
	fmt.Printf("\n下一步:\n")
	fmt.Printf("  sprocmap map %s\n", filepath.Join(cfg.OutputDir, "procs", procName(0)+".sql"))
	fmt.Printf("  sprocmap functions %s %s\n",
		filepath.Join(cfg.OutputDir, "procs", procName(0)+".sql"),
		filepath.Join(cfg.OutputDir, "functions"))
}

func generateProject(cfg *Config) error {
	if cfg.NumProcs <= 0 || cfg.MaxDepth < 0 {
		return fmt.Errorf("invalid config: procs=%d depth=%d", cfg.NumProcs, cfg.MaxDepth)
	}

	procDir := filepath.Join(cfg.OutputDir, "procs")
	funcDir := filepath.Join(cfg.OutputDir, "functions")
	for _, dir := range []string{procDir, funcDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	procsByDepth := organizeProcsByDepth(cfg.NumProcs, cfg.MaxDepth)

	for depth, procs := range procsByDepth {
		for _, p := range procs {
			calls := generateCalls(rng, p, procsByDepth, cfg)
			refs := generateFuncRefs(rng, cfg)
			path := filepath.Join(procDir, p.Name+".sql")
			if err := os.WriteFile(path, []byte(generateProcedure(p, calls, refs)), 0644); err != nil {
				return err
			}
		}
		fmt.Printf("  ✓ 深度 %d: %d 个过程\n", depth, len(procs))
	}

	for i := 0; i < cfg.NumFuncs; i++ {
		name := funcName(i)
		content := fmt.Sprintf("CREATE FUNCTION dbo.%s(@x INT) RETURNS INT AS\nBEGIN\n\tRETURN @x + %d\nEND\n", name, i)
		if err := os.WriteFile(filepath.Join(funcDir, name+".sql"), []byte(content), 0644); err != nil {
			return err
		}
	}

	return nil
}

func procName(i int) string {
	return fmt.Sprintf("usp_%04d", i)
}

func funcName(i int) string {
	return fmt.Sprintf("fn%04d", i)
}

// organizeProcsByDepth spreads procedures evenly over the depth levels.
// usp_0000 is always at depth 0 and is the natural root.
func organizeProcsByDepth(n, maxDepth int) [][]*ProcInfo {
	procsByDepth := make([][]*ProcInfo, maxDepth+1)
	for i := 0; i < n; i++ {
		depth := i % (maxDepth + 1)
		procsByDepth[depth] = append(procsByDepth[depth], &ProcInfo{Name: procName(i), Depth: depth})
	}
	return procsByDepth
}

func generateCalls(rng *rand.Rand, p *ProcInfo, procsByDepth [][]*ProcInfo, cfg *Config) []string {
	// 叶子层不调用其他过程
	nextDepth := p.Depth + 1
	if nextDepth >= len(procsByDepth) || len(procsByDepth[nextDepth]) == 0 {
		return nil
	}

	numCalls := rng.Intn(int(cfg.CallDensity*2)+1) + 1
	if numCalls > int(cfg.CallDensity*1.5) {
		numCalls = int(cfg.CallDensity)
	}

	var calls []string
	seen := make(map[string]bool)
	for i := 0; i < numCalls; i++ {
		var target *ProcInfo
		switch {
		case p.Depth > 0 && rng.Float64() < cfg.CycleRate:
			// 回指更浅的层，制造循环引用
			shallow := procsByDepth[rng.Intn(p.Depth)]
			target = shallow[rng.Intn(len(shallow))]
		case rng.Float64() < 0.8:
			level := procsByDepth[nextDepth]
			target = level[rng.Intn(len(level))]
		default:
			var deeper []*ProcInfo
			for d := nextDepth; d < len(procsByDepth); d++ {
				deeper = append(deeper, procsByDepth[d]...)
			}
			target = deeper[rng.Intn(len(deeper))]
		}

		if target.Name == p.Name || seen[target.Name] {
			continue
		}
		seen[target.Name] = true
		calls = append(calls, target.Name)
	}
	return calls
}

func generateFuncRefs(rng *rand.Rand, cfg *Config) []string {
	if cfg.NumFuncs == 0 || cfg.FuncRefs <= 0 {
		return nil
	}
	refs := make([]string, rng.Intn(cfg.FuncRefs+1))
	for i := range refs {
		refs[i] = "dbo." + funcName(rng.Intn(cfg.NumFuncs))
	}
	return refs
}

func generateProcedure(p *ProcInfo, calls, refs []string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("-- %s: mock procedure at depth %d\n", p.Name, p.Depth))
	sb.WriteString(fmt.Sprintf("CREATE PROCEDURE dbo.%s\n\t@input INT\nAS\nBEGIN\n", p.Name))
	sb.WriteString("\tSET NOCOUNT ON;\n")

	for i, ref := range refs {
		sb.WriteString(fmt.Sprintf("\tSELECT %s(@input + %d) AS v%d;\n", ref, i, i))
	}
	for _, call := range calls {
		sb.WriteString(fmt.Sprintf("\tEXEC dbo.%s @input;\n", call))
	}

	sb.WriteString("END\n")
	return sb.String()
}
