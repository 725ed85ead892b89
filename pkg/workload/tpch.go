package workload

// builtinSuiteName identifies the bundled TPC-H style suite.
const builtinSuiteName = "tpch-lite"

// builtinSetup returns no statements: the bundled suite assumes the TPC-H
// tables are already loaded (dbgen output or equivalent). Schema and data
// loading belong to the workload definition, not the engine.
func builtinSetup() []Statement {
	return nil
}

// builtinQueries is a portable subset of the TPC-H query set. Interval
// arithmetic and vendor-specific casts are pre-resolved to date literals so
// the same text runs on every supported engine.
func builtinQueries() []QuerySpec {
	return []QuerySpec{
		{
			Name: "q1-pricing-summary",
			Text: `select
        l_returnflag,
        l_linestatus,
        sum(l_quantity) as sum_qty,
        sum(l_extendedprice) as sum_base_price,
        sum(l_extendedprice * (1 - l_discount)) as sum_disc_price,
        sum(l_extendedprice * (1 - l_discount) * (1 + l_tax)) as sum_charge,
        avg(l_quantity) as avg_qty,
        avg(l_extendedprice) as avg_price,
        avg(l_discount) as avg_disc,
        count(*) as count_order
from
        lineitem
where
        l_shipdate <= '1998-09-02'
group by
        l_returnflag,
        l_linestatus
order by
        l_returnflag,
        l_linestatus`,
		},
		{
			Name: "q3-shipping-priority",
			Text: `select
        l_orderkey,
        sum(l_extendedprice * (1 - l_discount)) as revenue,
        o_orderdate,
        o_shippriority
from
        customer,
        orders,
        lineitem
where
        c_mktsegment = 'BUILDING'
        and c_custkey = o_custkey
        and l_orderkey = o_orderkey
        and o_orderdate < '1995-03-15'
        and l_shipdate > '1995-03-15'
group by
        l_orderkey,
        o_orderdate,
        o_shippriority
order by
        revenue desc,
        o_orderdate`,
		},
		{
			Name: "q5-local-supplier-volume",
			Text: `select
        n_name,
        sum(l_extendedprice * (1 - l_discount)) as revenue
from
        customer,
        orders,
        lineitem,
        supplier,
        nation,
        region
where
        c_custkey = o_custkey
        and l_orderkey = o_orderkey
        and l_suppkey = s_suppkey
        and c_nationkey = s_nationkey
        and s_nationkey = n_nationkey
        and n_regionkey = r_regionkey
        and r_name = 'ASIA'
        and o_orderdate >= '1994-01-01'
        and o_orderdate < '1995-01-01'
group by
        n_name
order by
        revenue desc`,
		},
		{
			Name: "q6-forecast-revenue",
			Text: `select
        sum(l_extendedprice * l_discount) as revenue
from
        lineitem
where
        l_shipdate >= '1994-01-01'
        and l_shipdate < '1995-01-01'
        and l_discount between 0.05 and 0.07
        and l_quantity < 24`,
		},
		{
			Name: "q10-returned-items",
			Text: `select
        c_custkey,
        c_name,
        sum(l_extendedprice * (1 - l_discount)) as revenue,
        c_acctbal,
        n_name,
        c_address,
        c_phone,
        c_comment
from
        customer,
        orders,
        lineitem,
        nation
where
        c_custkey = o_custkey
        and l_orderkey = o_orderkey
        and o_orderdate >= '1993-10-01'
        and o_orderdate < '1994-01-01'
        and l_returnflag = 'R'
        and c_nationkey = n_nationkey
group by
        c_custkey,
        c_name,
        c_acctbal,
        c_phone,
        n_name,
        c_address,
        c_comment
order by
        revenue desc`,
		},
	}
}
